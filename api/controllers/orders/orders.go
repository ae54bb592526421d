package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/api/middleware"
	"github.com/angelmondragon/orderflow/api/responses"
	"github.com/angelmondragon/orderflow/api/validators"
	"github.com/angelmondragon/orderflow/internal/attachments"
	"github.com/angelmondragon/orderflow/internal/lifecycle"
	internalorders "github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const (
	maxReasonLength = 500
	maxRefLength    = 1024
)

type createOrderItem struct {
	SellerID        string  `json:"seller_id" validate:"required,uuid"`
	StoreName       string  `json:"store_name" validate:"required,max=200"`
	ProductID       string  `json:"product_id" validate:"required,uuid"`
	ProductName     string  `json:"product_name" validate:"required,max=200"`
	SelectedVariant *string `json:"selected_variant" validate:"omitempty,max=120"`
	UnitPriceCents  int64   `json:"unit_price_cents" validate:"min=0"`
	Quantity        int     `json:"quantity" validate:"required,gt=0"`
}

type createOrderRequest struct {
	BuyerID       string            `json:"buyer_id" validate:"omitempty,uuid"`
	PaymentMethod string            `json:"payment_method" validate:"required,oneof=cod transfer"`
	Currency      string            `json:"currency" validate:"omitempty,max=8"`
	Items         []createOrderItem `json:"items" validate:"required,min=1,dive"`
}

type eventRequest struct {
	Event    string `json:"event" validate:"required"`
	Reason   string `json:"reason" validate:"max=500"`
	ProofRef string `json:"proof_ref" validate:"max=1024"`
}

type paymentProofRequest struct {
	ProofRef string `json:"proof_ref" validate:"required,max=1024"`
}

// ActorFrom returns the caller identity placed on the request by middleware.Actor.
func ActorFrom(r *http.Request) internalorders.Actor {
	return internalorders.Actor{
		ID:   middleware.ActorIDFromContext(r.Context()),
		Role: middleware.RoleFromContext(r.Context()),
	}
}

// ParseOrderID reads the {orderId} path parameter.
func ParseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id").WithDetails(map[string]any{"field": "orderId"})
	}
	return id, nil
}

// WriteOrder renders order along with the events actor may raise next.
func WriteOrder(w http.ResponseWriter, r *http.Request, status int, order *models.Order, actor internalorders.Actor, resolver *attachments.Resolver, logg *logger.Logger) {
	view, err := NewOrderView(order, resolver)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payment proof"))
		return
	}
	view.AvailableEvents = lifecycle.AvailableEvents(internalorders.Snapshot(order), actor.Role)
	responses.WriteSuccessStatus(w, status, view)
}

// Create places a new order. Buyers order for themselves; admins may place an
// order on behalf of buyer_id.
func Create(svc internalorders.Service, resolver *attachments.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := ActorFrom(r)
		buyerID := actor.ID
		if req.BuyerID != "" {
			parsed, err := uuid.Parse(req.BuyerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid buyer id"))
				return
			}
			buyerID = parsed
		}

		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}
		var currency enums.Currency
		if req.Currency != "" {
			currency, err = enums.ParseCurrency(req.Currency)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
				return
			}
		}

		items := make([]internalorders.ItemInput, len(req.Items))
		for i, item := range req.Items {
			// both ids were checked by the uuid validation tag
			items[i] = internalorders.ItemInput{
				SellerID:        uuid.MustParse(item.SellerID),
				StoreName:       validators.SanitizeString(item.StoreName, 200),
				ProductID:       uuid.MustParse(item.ProductID),
				ProductName:     validators.SanitizeString(item.ProductName, 200),
				SelectedVariant: item.SelectedVariant,
				UnitPriceCents:  item.UnitPriceCents,
				Quantity:        item.Quantity,
			}
		}

		order, err := svc.CreateOrder(r.Context(), internalorders.CreateOrderInput{
			BuyerID:       buyerID,
			PaymentMethod: method,
			Currency:      currency,
			Items:         items,
			Actor:         actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		WriteOrder(w, r, http.StatusCreated, order, actor, resolver, logg)
	}
}

// Detail returns one order the caller is allowed to see.
func Detail(svc internalorders.Service, resolver *attachments.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := ParseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := ActorFrom(r)
		order, err := svc.GetOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		WriteOrder(w, r, http.StatusOK, order, actor, resolver, logg)
	}
}

// FireEvent raises a lifecycle event. Payment events are routed through the
// payment proof ledger so they keep its rules.
func FireEvent(svc internalorders.Service, paymentsSvc payments.Service, resolver *attachments.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := ParseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req eventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := enums.ParseOrderEvent(req.Event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown event").
				WithDetails(map[string]any{"allowed": enums.OrderEvents()}))
			return
		}

		actor := ActorFrom(r)
		ctx := logg.WithFields(logg.WithOrderID(r.Context(), orderID.String()), map[string]any{"event": event})
		reason := validators.SanitizeString(req.Reason, maxReasonLength)

		var order *models.Order
		switch event {
		case enums.OrderEventSubmitProof:
			proofRef := validators.SanitizeString(req.ProofRef, maxRefLength)
			if err := resolver.Verify(ctx, proofRef); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			order, err = paymentsSvc.SubmitProof(ctx, payments.SubmitProofInput{
				OrderID:  orderID,
				ProofRef: proofRef,
				Actor:    actor,
			})
		case enums.OrderEventApprovePayment, enums.OrderEventRejectPayment:
			decision := enums.PaymentDecisionApprove
			if event == enums.OrderEventRejectPayment {
				decision = enums.PaymentDecisionReject
			}
			order, err = paymentsSvc.VerifyPayment(ctx, payments.VerifyPaymentInput{
				OrderID:  orderID,
				Decision: decision,
				Reason:   reason,
				Actor:    actor,
			})
		case enums.OrderEventCancel:
			order, err = svc.Cancel(ctx, orderID, actor, reason)
		default:
			order, err = svc.Transition(ctx, internalorders.TransitionRequest{
				OrderID: orderID,
				Event:   event,
				Actor:   actor,
				Input:   lifecycle.Input{Reason: reason},
			})
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		WriteOrder(w, r, http.StatusOK, order, actor, resolver, logg)
	}
}

// SubmitPaymentProof attaches or replaces the buyer's transfer receipt.
func SubmitPaymentProof(paymentsSvc payments.Service, resolver *attachments.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := ParseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req paymentProofRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		proofRef := validators.SanitizeString(req.ProofRef, maxRefLength)
		if err := resolver.Verify(r.Context(), proofRef); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := ActorFrom(r)
		order, err := paymentsSvc.SubmitProof(r.Context(), payments.SubmitProofInput{
			OrderID:  orderID,
			ProofRef: proofRef,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		WriteOrder(w, r, http.StatusOK, order, actor, resolver, logg)
	}
}
