package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateVersioned(ctx context.Context, orderID uuid.UUID, version int, status enums.OrderStatus, updates map[string]any) error
	ListAwaitingTransfer(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Order, *pagination.Cursor, error)
	ListForRevenue(ctx context.Context, statuses []enums.OrderStatus) ([]models.Order, error)
}

// NumberSequence allocates human-readable order numbers.
type NumberSequence interface {
	Next(ctx context.Context, tx *gorm.DB) (int64, error)
}

// SettlementInitializer creates the per-seller payout rows once payment is confirmed.
type SettlementInitializer interface {
	Initialize(ctx context.Context, tx *gorm.DB, order *models.Order) error
}

// LedgerRecorder appends money audit events.
type LedgerRecorder interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error)
}

// Clock is the wall-clock source for every timestamp the service writes.
type Clock func() time.Time

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
