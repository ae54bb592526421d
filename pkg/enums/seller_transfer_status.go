package enums

import "fmt"

// SellerTransferStatus is the order-level payout state, independent of the buyer-facing status.
type SellerTransferStatus string

const (
	SellerTransferStatusNone        SellerTransferStatus = "none"
	SellerTransferStatusPending     SellerTransferStatus = "pending"
	SellerTransferStatusTransferred SellerTransferStatus = "transferred"
	SellerTransferStatusNotRequired SellerTransferStatus = "not_required"
)

var validSellerTransferStatuses = []SellerTransferStatus{
	SellerTransferStatusNone,
	SellerTransferStatusPending,
	SellerTransferStatusTransferred,
	SellerTransferStatusNotRequired,
}

// String implements fmt.Stringer.
func (s SellerTransferStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SellerTransferStatus.
func (s SellerTransferStatus) IsValid() bool {
	for _, candidate := range validSellerTransferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSellerTransferStatus converts raw input into a SellerTransferStatus.
func ParseSellerTransferStatus(value string) (SellerTransferStatus, error) {
	for _, candidate := range validSellerTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid seller transfer status %q", value)
}

// SettlementStatus tracks a single seller's payout row within an order.
type SettlementStatus string

const (
	SettlementStatusPending     SettlementStatus = "pending"
	SettlementStatusTransferred SettlementStatus = "transferred"
)

// IsValid reports whether the value is a known SettlementStatus.
func (s SettlementStatus) IsValid() bool {
	return s == SettlementStatusPending || s == SettlementStatusTransferred
}
