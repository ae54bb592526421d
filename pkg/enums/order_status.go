package enums

import "fmt"

// OrderStatus tracks where an order sits in its payment-method specific lifecycle.
type OrderStatus string

const (
	OrderStatusPending             OrderStatus = "pending"
	OrderStatusPendingPayment      OrderStatus = "pending_payment"
	OrderStatusPendingVerification OrderStatus = "pending_verification"
	OrderStatusPaymentRejected     OrderStatus = "payment_rejected"
	OrderStatusPaymentConfirmed    OrderStatus = "payment_confirmed"
	OrderStatusProcessing          OrderStatus = "processing"
	OrderStatusShipped             OrderStatus = "shipped"
	OrderStatusDelivered           OrderStatus = "delivered"
	OrderStatusCompleted           OrderStatus = "completed"

	OrderStatusCODConfirmed  OrderStatus = "cod_confirmed"
	OrderStatusCODProcessing OrderStatus = "cod_processing"
	OrderStatusCODShipped    OrderStatus = "cod_shipped"
	OrderStatusCODDelivered  OrderStatus = "cod_delivered"

	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPendingPayment,
	OrderStatusPendingVerification,
	OrderStatusPaymentRejected,
	OrderStatusPaymentConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCODConfirmed,
	OrderStatusCODProcessing,
	OrderStatusCODShipped,
	OrderStatusCODDelivered,
	OrderStatusCancelled,
}

// OrderStatuses returns every known status in declaration order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCODDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
