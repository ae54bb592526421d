package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/orderflow/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"version INTEGER NOT NULL DEFAULT 1",
		"CHECK (payment_method <> 'cod' OR admin_fee_cents = 0)",
		"CHECK (total_cents = subtotal_cents + admin_fee_cents)",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (total_cents = unit_price_cents * quantity)",
		"CREATE SEQUENCE IF NOT EXISTS order_number_seq",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSettlementMigrationKeysBySeller(t *testing.T) {
	content := readMigration(t, "*_create_seller_settlements.sql")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_seller_settlements_order_seller",
		"ON seller_settlements (order_id, seller_id)",
		"CHECK (status IN ('pending', 'transferred'))",
		"DROP TABLE IF EXISTS seller_settlements",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerMigrationAllowsOnePayoutPerSeller(t *testing.T) {
	content := readMigration(t, "*_create_ledger_events.sql")
	if !strings.Contains(content, "ux_ledger_events_payout") {
		t.Errorf("missing payout uniqueness index")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
