package lifecycle

import "github.com/angelmondragon/orderflow/pkg/enums"

// Stamp names an order timestamp a transition sets.
type Stamp string

const (
	StampProofUploaded    Stamp = "payment_proof_uploaded_at"
	StampPaymentConfirmed Stamp = "payment_confirmed_at"
	StampShipped          Stamp = "shipped_at"
	StampDelivered        Stamp = "delivered_at"
	StampCompleted        Stamp = "completed_at"
	StampCODDelivered     Stamp = "cod_delivered_at"
	StampCanceled         Stamp = "canceled_at"
)

// Effects are the instructions attached to an accepted transition.
// updated_at is always stamped and is not listed.
type Effects struct {
	Stamps []Stamp

	ProofRef             *string
	Verification         *enums.AdminVerificationStatus
	RejectionReason      *string
	ClearRejectionReason bool
	CancelReason         *string
	SellerTransferStatus *enums.SellerTransferStatus

	// InitSettlement asks the caller to create one pending settlement row per seller.
	InitSettlement         bool
	RecordPaymentConfirmed bool
	RecordCODCollection    bool
}

// Has reports whether the effects include the stamp.
func (e Effects) Has(stamp Stamp) bool {
	for _, s := range e.Stamps {
		if s == stamp {
			return true
		}
	}
	return false
}
