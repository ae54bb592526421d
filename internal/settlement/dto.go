package settlement

import (
	"time"

	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/google/uuid"
)

// TransferProof is the admin's evidence that one seller was paid.
type TransferProof struct {
	Ref   string
	Notes string
}

// RecordTransfersInput settles every seller of an order in one commit.
type RecordTransfersInput struct {
	OrderID uuid.UUID
	Proofs  map[uuid.UUID]TransferProof
	Actor   orders.Actor
}

// SellerEntry is one seller's payout inside a Settlement.
type SellerEntry struct {
	SellerID         uuid.UUID              `json:"seller_id"`
	StoreName        string                 `json:"store_name"`
	AmountCents      int64                  `json:"amount_cents"`
	AdminFeeCents    int64                  `json:"admin_fee_cents"`
	Status           enums.SettlementStatus `json:"status"`
	TransferProofRef *string                `json:"transfer_proof_ref,omitempty"`
	TransferProofURL *string                `json:"transfer_proof_url,omitempty"`
	Notes            *string                `json:"notes,omitempty"`
	TransferredAt    *time.Time             `json:"transferred_at,omitempty"`
}

// Settlement is the read view of an order's payout state.
type Settlement struct {
	OrderID       uuid.UUID                  `json:"order_id"`
	OrderNumber   int64                      `json:"order_number"`
	PaymentMethod enums.PaymentMethod        `json:"payment_method"`
	NeedsTransfer bool                       `json:"needs_transfer"`
	Status        enums.SellerTransferStatus `json:"status"`
	TransferredAt *time.Time                 `json:"transferred_at,omitempty"`
	Sellers       []SellerEntry              `json:"sellers"`
}

// PendingTransfer summarises an order waiting in the admin payout queue.
type PendingTransfer struct {
	OrderID       uuid.UUID  `json:"order_id"`
	OrderNumber   int64      `json:"order_number"`
	TotalCents    int64      `json:"total_cents"`
	AdminFeeCents int64      `json:"admin_fee_cents"`
	PayoutCents   int64      `json:"payout_cents"`
	SellerCount   int        `json:"seller_count"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PendingTransferList wraps one page of the payout queue.
type PendingTransferList struct {
	Orders     []PendingTransfer `json:"orders"`
	NextCursor string            `json:"next_cursor,omitempty"`
}
