package enums

import "fmt"

// OrderEvent is an action raised against an order by a buyer, seller, admin or the system.
type OrderEvent string

const (
	OrderEventAwaitPayment    OrderEvent = "await_payment"
	OrderEventSubmitProof     OrderEvent = "submit_proof"
	OrderEventApprovePayment  OrderEvent = "approve_payment"
	OrderEventRejectPayment   OrderEvent = "reject_payment"
	OrderEventStartProcessing OrderEvent = "start_processing"
	OrderEventShip            OrderEvent = "ship"
	OrderEventMarkDelivered   OrderEvent = "mark_delivered"
	OrderEventConfirmReceipt  OrderEvent = "confirm_receipt"
	OrderEventCancel          OrderEvent = "cancel"
)

var validOrderEvents = []OrderEvent{
	OrderEventAwaitPayment,
	OrderEventSubmitProof,
	OrderEventApprovePayment,
	OrderEventRejectPayment,
	OrderEventStartProcessing,
	OrderEventShip,
	OrderEventMarkDelivered,
	OrderEventConfirmReceipt,
	OrderEventCancel,
}

// OrderEvents returns every known event in declaration order.
func OrderEvents() []OrderEvent {
	out := make([]OrderEvent, len(validOrderEvents))
	copy(out, validOrderEvents)
	return out
}

// String implements fmt.Stringer.
func (e OrderEvent) String() string {
	return string(e)
}

// IsValid reports whether the value is a known OrderEvent.
func (e OrderEvent) IsValid() bool {
	for _, candidate := range validOrderEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOrderEvent converts raw input into an OrderEvent.
func ParseOrderEvent(value string) (OrderEvent, error) {
	for _, candidate := range validOrderEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order event %q", value)
}
