package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/internal/attachments"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// ItemView is the public form of an order line.
type ItemView struct {
	ID              uuid.UUID `json:"id"`
	SellerID        uuid.UUID `json:"seller_id"`
	StoreName       string    `json:"store_name"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductName     string    `json:"product_name"`
	SelectedVariant *string   `json:"selected_variant,omitempty"`
	UnitPriceCents  int64     `json:"unit_price_cents"`
	Quantity        int       `json:"quantity"`
	TotalCents      int64     `json:"total_cents"`
}

// OrderView is the public form of an order. PaymentProofURL is a display link
// resolved from the stored reference and is never persisted.
type OrderView struct {
	ID                      uuid.UUID                     `json:"id"`
	OrderNumber             int64                         `json:"order_number"`
	BuyerID                 uuid.UUID                     `json:"buyer_id"`
	PaymentMethod           enums.PaymentMethod           `json:"payment_method"`
	Status                  enums.OrderStatus             `json:"status"`
	Version                 int                           `json:"version"`
	Currency                enums.Currency                `json:"currency"`
	SubtotalCents           int64                         `json:"subtotal_cents"`
	AdminFeeCents           int64                         `json:"admin_fee_cents"`
	AdminFeeRateBPS         int                           `json:"admin_fee_rate_bps"`
	TotalCents              int64                         `json:"total_cents"`
	PaymentProofRef         *string                       `json:"payment_proof_ref,omitempty"`
	PaymentProofURL         *string                       `json:"payment_proof_url,omitempty"`
	PaymentProofUploadedAt  *time.Time                    `json:"payment_proof_uploaded_at,omitempty"`
	AdminVerificationStatus enums.AdminVerificationStatus `json:"admin_verification_status"`
	PaymentRejectionReason  *string                       `json:"payment_rejection_reason,omitempty"`
	SellerTransferStatus    enums.SellerTransferStatus    `json:"seller_transfer_status"`
	CancelReason            *string                       `json:"cancel_reason,omitempty"`
	PaymentConfirmedAt      *time.Time                    `json:"payment_confirmed_at,omitempty"`
	ShippedAt               *time.Time                    `json:"shipped_at,omitempty"`
	DeliveredAt             *time.Time                    `json:"delivered_at,omitempty"`
	CompletedAt             *time.Time                    `json:"completed_at,omitempty"`
	CODDeliveredAt          *time.Time                    `json:"cod_delivered_at,omitempty"`
	CanceledAt              *time.Time                    `json:"canceled_at,omitempty"`
	TransferredAt           *time.Time                    `json:"transferred_at,omitempty"`
	Items                   []ItemView                    `json:"items"`
	AvailableEvents         []enums.OrderEvent            `json:"available_events,omitempty"`
	CreatedAt               time.Time                     `json:"created_at"`
	UpdatedAt               time.Time                     `json:"updated_at"`
}

// NewOrderView renders order for API responses.
func NewOrderView(order *models.Order, resolver *attachments.Resolver) (*OrderView, error) {
	proofURL, err := resolver.ResolvePtr(order.PaymentProofRef)
	if err != nil {
		return nil, err
	}

	items := make([]ItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemView{
			ID:              item.ID,
			SellerID:        item.SellerID,
			StoreName:       item.StoreName,
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			SelectedVariant: item.SelectedVariant,
			UnitPriceCents:  item.UnitPriceCents,
			Quantity:        item.Quantity,
			TotalCents:      item.TotalCents,
		})
	}

	return &OrderView{
		ID:                      order.ID,
		OrderNumber:             order.OrderNumber,
		BuyerID:                 order.BuyerID,
		PaymentMethod:           order.PaymentMethod,
		Status:                  order.Status,
		Version:                 order.Version,
		Currency:                order.Currency,
		SubtotalCents:           order.SubtotalCents,
		AdminFeeCents:           order.AdminFeeCents,
		AdminFeeRateBPS:         order.AdminFeeRateBPS,
		TotalCents:              order.TotalCents,
		PaymentProofRef:         order.PaymentProofRef,
		PaymentProofURL:         proofURL,
		PaymentProofUploadedAt:  order.PaymentProofUploadedAt,
		AdminVerificationStatus: order.AdminVerificationStatus,
		PaymentRejectionReason:  order.PaymentRejectionReason,
		SellerTransferStatus:    order.SellerTransferStatus,
		CancelReason:            order.CancelReason,
		PaymentConfirmedAt:      order.PaymentConfirmedAt,
		ShippedAt:               order.ShippedAt,
		DeliveredAt:             order.DeliveredAt,
		CompletedAt:             order.CompletedAt,
		CODDeliveredAt:          order.CODDeliveredAt,
		CanceledAt:              order.CanceledAt,
		TransferredAt:           order.TransferredAt,
		Items:                   items,
		CreatedAt:               order.CreatedAt,
		UpdatedAt:               order.UpdatedAt,
	}, nil
}
