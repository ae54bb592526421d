package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// SellerSettlement tracks the payout owed to one seller for one order.
type SellerSettlement struct {
	ID                  uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_seller_settlements_order_seller,priority:1"`
	SellerID            uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_seller_settlements_order_seller,priority:2"`
	StoreName           string                 `gorm:"column:store_name;not null"`
	SellerAmountCents   int64                  `gorm:"column:seller_amount_cents;not null"`
	SellerAdminFeeCents int64                  `gorm:"column:seller_admin_fee_cents;not null"`
	Status              enums.SettlementStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	TransferProofRef    *string                `gorm:"column:transfer_proof_ref"`
	Notes               *string                `gorm:"column:notes"`
	TransferredAt       *time.Time             `gorm:"column:transferred_at"`
	TransferredBy       *uuid.UUID             `gorm:"column:transferred_by;type:uuid"`
	CreatedAt           time.Time              `gorm:"column:created_at"`
	UpdatedAt           time.Time              `gorm:"column:updated_at"`
}
