package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow/internal/lifecycle"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxReasonLength = 500

// Service records buyer payment proofs and the admin verdict on them.
type Service interface {
	SubmitProof(ctx context.Context, input SubmitProofInput) (*models.Order, error)
	VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*models.Order, error)
}

// SubmitProofInput carries an uploaded transfer receipt reference.
type SubmitProofInput struct {
	OrderID  uuid.UUID
	ProofRef string
	Actor    orders.Actor
}

// VerifyPaymentInput carries the admin decision for an order's current proof.
type VerifyPaymentInput struct {
	OrderID  uuid.UUID
	Decision enums.PaymentDecision
	Reason   string
	Actor    orders.Actor
}

type transitioner interface {
	Transition(ctx context.Context, req orders.TransitionRequest) (*models.Order, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	orders transitioner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService builds the payment proof service on top of the order lifecycle.
func NewService(orderSvc transitioner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{orders: orderSvc, outbox: publisher, logg: logg}, nil
}

// SubmitProof stores the proof on a transfer order. A proof sent while the previous
// one is still under review replaces it without a status change. A blank reference
// is refused by the state machine as an invalid transition.
func (s *service) SubmitProof(ctx context.Context, input SubmitProofInput) (*models.Order, error) {
	ref := strings.TrimSpace(input.ProofRef)

	order, err := s.orders.Transition(ctx, orders.TransitionRequest{
		OrderID: input.OrderID,
		Event:   enums.OrderEventSubmitProof,
		Actor:   input.Actor,
		Input:   lifecycle.Input{ProofRef: ref},
		AfterApply: func(ctx context.Context, tx *gorm.DB, before, after *models.Order, out lifecycle.Outcome) error {
			return s.emit(ctx, tx, input.Actor, after.ID, enums.EventPaymentProofSubmitted, payloads.PaymentProofSubmittedEvent{
				OrderID:     after.ID,
				BuyerID:     after.BuyerID,
				ProofRef:    ref,
				SubmittedAt: derefTime(after.PaymentProofUploadedAt, after.UpdatedAt),
				Replaced:    before.PaymentProofRef != nil,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "payment proof submitted")
	return order, nil
}

// VerifyPayment applies the admin decision. Repeating a decision the order already
// reflects succeeds without writing anything.
func (s *service) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*models.Order, error) {
	if input.Actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins verify payments")
	}
	reason := strings.TrimSpace(input.Reason)
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at most %d characters", maxReasonLength))
	}

	var (
		event enums.OrderEvent
		skip  func(*models.Order) bool
	)
	switch input.Decision {
	case enums.PaymentDecisionApprove:
		event = enums.OrderEventApprovePayment
		skip = func(order *models.Order) bool {
			return order.AdminVerificationStatus == enums.AdminVerificationApproved
		}
	case enums.PaymentDecisionReject:
		if reason == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
		}
		event = enums.OrderEventRejectPayment
		skip = func(order *models.Order) bool {
			return order.Status == enums.OrderStatusPaymentRejected &&
				order.AdminVerificationStatus == enums.AdminVerificationRejected
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment decision %q", input.Decision))
	}

	order, err := s.orders.Transition(ctx, orders.TransitionRequest{
		OrderID: input.OrderID,
		Event:   event,
		Actor:   input.Actor,
		Input:   lifecycle.Input{Reason: reason},
		Guard:   requireProof,
		Skip:    skip,
		AfterApply: func(ctx context.Context, tx *gorm.DB, _, after *models.Order, out lifecycle.Outcome) error {
			return s.emit(ctx, tx, input.Actor, after.ID, enums.EventPaymentVerified, payloads.PaymentVerifiedEvent{
				OrderID:    after.ID,
				Decision:   after.AdminVerificationStatus,
				Status:     out.To,
				Reason:     reason,
				TotalCents: after.TotalCents,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"decision": input.Decision,
		"status":   order.Status,
	})
	s.logg.Info(logCtx, "payment verified")
	return order, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor orders.Actor, orderID uuid.UUID, eventType enums.OutboxEventType, data any) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor.Ref(),
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func requireProof(order *models.Order) error {
	if order.PaymentMethod != enums.PaymentMethodTransfer {
		return nil
	}
	if order.PaymentProofRef == nil || strings.TrimSpace(*order.PaymentProofRef) == "" {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "order has no payment proof to verify")
	}
	return nil
}

func derefTime(v *time.Time, fallback time.Time) time.Time {
	if v == nil {
		return fallback
	}
	return *v
}
