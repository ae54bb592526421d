package models

// All lists every persisted model in dependency order. Used by the SQLite dev
// schema bootstrap and test databases; Postgres is migrated with goose.
func All() []any {
	return []any{
		&Order{},
		&OrderItem{},
		&SellerSettlement{},
		&LedgerEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
