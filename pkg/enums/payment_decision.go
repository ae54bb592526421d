package enums

import "fmt"

// PaymentDecision is the admin's verdict on a buyer's payment proof.
type PaymentDecision string

const (
	PaymentDecisionApprove PaymentDecision = "approve"
	PaymentDecisionReject  PaymentDecision = "reject"
)

// IsValid reports whether the value is a known PaymentDecision.
func (d PaymentDecision) IsValid() bool {
	return d == PaymentDecisionApprove || d == PaymentDecisionReject
}

// ParsePaymentDecision converts raw input into a PaymentDecision.
func ParsePaymentDecision(value string) (PaymentDecision, error) {
	d := PaymentDecision(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid payment decision %q", value)
	}
	return d, nil
}
