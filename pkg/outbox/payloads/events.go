package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// OrderCreatedEvent announces a newly placed order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id" validate:"required"`
	OrderNumber   int64               `json:"order_number" validate:"gt=0"`
	BuyerID       uuid.UUID           `json:"buyer_id" validate:"required"`
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required"`
	Status        enums.OrderStatus   `json:"status" validate:"required"`
	SubtotalCents int64               `json:"subtotal_cents"`
	AdminFeeCents int64               `json:"admin_fee_cents"`
	TotalCents    int64               `json:"total_cents" validate:"gte=0"`
	SellerIDs     []uuid.UUID         `json:"seller_ids" validate:"required,min=1"`
}

// OrderStatusChangedEvent is emitted for every accepted lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id" validate:"required"`
	Event     enums.OrderEvent  `json:"event" validate:"required"`
	From      enums.OrderStatus `json:"from" validate:"required"`
	To        enums.OrderStatus `json:"to" validate:"required"`
	ActorRole enums.ActorRole   `json:"actor_role"`
	Reason    string            `json:"reason,omitempty"`
}

// PaymentProofSubmittedEvent tells admins a transfer proof awaits review.
type PaymentProofSubmittedEvent struct {
	OrderID     uuid.UUID `json:"order_id" validate:"required"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	ProofRef    string    `json:"proof_ref" validate:"required"`
	SubmittedAt time.Time `json:"submitted_at"`
	Replaced    bool      `json:"replaced"`
}

// PaymentVerifiedEvent carries the admin decision on a payment proof.
type PaymentVerifiedEvent struct {
	OrderID    uuid.UUID                     `json:"order_id" validate:"required"`
	Decision   enums.AdminVerificationStatus `json:"decision" validate:"required"`
	Status     enums.OrderStatus             `json:"status" validate:"required"`
	Reason     string                        `json:"reason,omitempty"`
	TotalCents int64                         `json:"total_cents"`
}

// SellerTransfer is one payout inside a SellerTransferRecordedEvent.
type SellerTransfer struct {
	SellerID         uuid.UUID `json:"seller_id" validate:"required"`
	AmountCents      int64     `json:"amount_cents" validate:"gte=0"`
	AdminFeeCents    int64     `json:"admin_fee_cents"`
	TransferProofRef string    `json:"transfer_proof_ref"`
}

// SellerTransferRecordedEvent is emitted once all sellers of an order are paid out.
type SellerTransferRecordedEvent struct {
	OrderID       uuid.UUID        `json:"order_id" validate:"required"`
	Transfers     []SellerTransfer `json:"transfers" validate:"required,min=1,dive"`
	TransferredAt time.Time        `json:"transferred_at"`
}
