package orders

import (
	"time"

	"github.com/angelmondragon/orderflow/internal/lifecycle"
	"github.com/angelmondragon/orderflow/pkg/db/models"
)

// buildUpdates turns an accepted outcome into the column changes for one write.
func buildUpdates(order *models.Order, out lifecycle.Outcome, now time.Time) map[string]any {
	updates := map[string]any{
		"status":     out.To,
		"updated_at": now,
	}
	for _, stamp := range out.Effects.Stamps {
		// Keep the delivery time of orders an admin already marked delivered.
		if stamp == lifecycle.StampDelivered && order.DeliveredAt != nil {
			continue
		}
		updates[string(stamp)] = now
	}
	if out.Effects.ProofRef != nil {
		updates["payment_proof_ref"] = *out.Effects.ProofRef
	}
	if out.Effects.Verification != nil {
		updates["admin_verification_status"] = *out.Effects.Verification
	}
	if out.Effects.ClearRejectionReason {
		updates["payment_rejection_reason"] = nil
	}
	if out.Effects.RejectionReason != nil {
		updates["payment_rejection_reason"] = *out.Effects.RejectionReason
	}
	if out.Effects.CancelReason != nil {
		updates["cancel_reason"] = *out.Effects.CancelReason
	}
	if out.Effects.SellerTransferStatus != nil {
		updates["seller_transfer_status"] = *out.Effects.SellerTransferStatus
	}
	return updates
}
