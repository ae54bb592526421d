package admin

import (
	"net/http"

	"github.com/angelmondragon/orderflow/api/controllers/orders"
	"github.com/angelmondragon/orderflow/api/responses"
	"github.com/angelmondragon/orderflow/api/validators"
	"github.com/angelmondragon/orderflow/internal/attachments"
	"github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

type verificationRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason" validate:"max=500"`
}

// VerifyPayment records the admin verdict on an order's payment proof.
func VerifyPayment(svc payments.Service, resolver *attachments.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orders.ParseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req verificationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := enums.ParsePaymentDecision(req.Decision)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision"))
			return
		}

		actor := orders.ActorFrom(r)
		ctx := logg.WithOrderID(r.Context(), orderID.String())
		order, err := svc.VerifyPayment(ctx, payments.VerifyPaymentInput{
			OrderID:  orderID,
			Decision: decision,
			Reason:   validators.SanitizeString(req.Reason, 500),
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		orders.WriteOrder(w, r, http.StatusOK, order, actor, resolver, logg)
	}
}
