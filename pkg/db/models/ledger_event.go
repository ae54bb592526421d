package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// LedgerEvent records an immutable money lifecycle event tied to an order.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index:ix_ledger_events_order_id;uniqueIndex:ux_ledger_events_payout,priority:1,where:type = 'seller_payout'"`
	SellerID    *uuid.UUID            `gorm:"column:seller_id;type:uuid;uniqueIndex:ux_ledger_events_payout,priority:2,where:type = 'seller_payout'"`
	ActorID     uuid.UUID             `gorm:"column:actor_id;type:uuid;not null"`
	Type        enums.LedgerEventType `gorm:"column:type;type:text;not null"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at"`
}
