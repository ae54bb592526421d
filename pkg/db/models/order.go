package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Order is a buyer purchase that may span several sellers.
type Order struct {
	ID                      uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber             int64                         `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	BuyerID                 uuid.UUID                     `gorm:"column:buyer_id;type:uuid;not null"`
	PaymentMethod           enums.PaymentMethod           `gorm:"column:payment_method;type:text;not null"`
	Status                  enums.OrderStatus             `gorm:"column:status;type:text;not null"`
	Version                 int                           `gorm:"column:version;not null;default:1"`
	Currency                enums.Currency                `gorm:"column:currency;type:text;not null;default:'IDR'"`
	SubtotalCents           int64                         `gorm:"column:subtotal_cents;not null"`
	AdminFeeCents           int64                         `gorm:"column:admin_fee_cents;not null;default:0"`
	AdminFeeRateBPS         int                           `gorm:"column:admin_fee_rate_bps;not null;default:0"`
	TotalCents              int64                         `gorm:"column:total_cents;not null"`
	PaymentProofRef         *string                       `gorm:"column:payment_proof_ref"`
	PaymentProofUploadedAt  *time.Time                    `gorm:"column:payment_proof_uploaded_at"`
	AdminVerificationStatus enums.AdminVerificationStatus `gorm:"column:admin_verification_status;type:text;not null"`
	PaymentRejectionReason  *string                       `gorm:"column:payment_rejection_reason"`
	SellerTransferStatus    enums.SellerTransferStatus    `gorm:"column:seller_transfer_status;type:text;not null;default:'none'"`
	CancelReason            *string                       `gorm:"column:cancel_reason"`
	PaymentConfirmedAt      *time.Time                    `gorm:"column:payment_confirmed_at"`
	ShippedAt               *time.Time                    `gorm:"column:shipped_at"`
	DeliveredAt             *time.Time                    `gorm:"column:delivered_at"`
	CompletedAt             *time.Time                    `gorm:"column:completed_at"`
	CODDeliveredAt          *time.Time                    `gorm:"column:cod_delivered_at"`
	CanceledAt              *time.Time                    `gorm:"column:canceled_at"`
	TransferredAt           *time.Time                    `gorm:"column:transferred_at"`
	Items                   []OrderItem                   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Settlements             []SellerSettlement            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt               time.Time                     `gorm:"column:created_at"`
	UpdatedAt               time.Time                     `gorm:"column:updated_at"`
}

// SellerIDs returns the distinct sellers of the order in first-seen item order.
func (o *Order) SellerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		ids = append(ids, item.SellerID)
	}
	return ids
}
