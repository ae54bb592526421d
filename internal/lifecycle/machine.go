package lifecycle

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// Snapshot is the slice of order state the machine needs to decide a transition.
type Snapshot struct {
	Status        enums.OrderStatus
	PaymentMethod enums.PaymentMethod
	HasProof      bool
}

// Input carries event-specific arguments.
type Input struct {
	ProofRef string
	Reason   string
}

// Outcome is the accepted transition plus the side effects the caller must persist.
type Outcome struct {
	Event   enums.OrderEvent
	From    enums.OrderStatus
	To      enums.OrderStatus
	Effects Effects
}

// Changed reports whether the outcome moves the order to a different status.
func (o Outcome) Changed() bool {
	return o.From != o.To
}

type rule struct {
	to       enums.OrderStatus
	actors   []enums.ActorRole
	requires func(Snapshot, enums.OrderEvent, enums.ActorRole, Input) error
	effects  func(Snapshot, Input) Effects
}

type transitionKey struct {
	from  enums.OrderStatus
	event enums.OrderEvent
}

var (
	transferStatuses = statusSet(
		enums.OrderStatusPending,
		enums.OrderStatusPendingPayment,
		enums.OrderStatusPendingVerification,
		enums.OrderStatusPaymentRejected,
		enums.OrderStatusPaymentConfirmed,
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCompleted,
	)
	codStatuses = statusSet(
		enums.OrderStatusCODConfirmed,
		enums.OrderStatusCODProcessing,
		enums.OrderStatusCODShipped,
		enums.OrderStatusCODDelivered,
	)
	cancellable = []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusPendingPayment,
		enums.OrderStatusPendingVerification,
		enums.OrderStatusPaymentRejected,
		enums.OrderStatusPaymentConfirmed,
		enums.OrderStatusProcessing,
		enums.OrderStatusCODConfirmed,
		enums.OrderStatusCODProcessing,
	}
)

var (
	buyerOnly    = []enums.ActorRole{enums.ActorRoleBuyer}
	adminOnly    = []enums.ActorRole{enums.ActorRoleAdmin}
	systemOnly   = []enums.ActorRole{enums.ActorRoleSystem}
	fulfilment   = []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSeller}
	buyerOrAdmin = []enums.ActorRole{enums.ActorRoleBuyer, enums.ActorRoleAdmin}
)

var rules = buildRules()

func buildRules() map[transitionKey]rule {
	r := map[transitionKey]rule{
		{enums.OrderStatusPending, enums.OrderEventAwaitPayment}: {
			to:     enums.OrderStatusPendingPayment,
			actors: systemOnly,
		},
		{enums.OrderStatusPendingPayment, enums.OrderEventSubmitProof}: {
			to:       enums.OrderStatusPendingVerification,
			actors:   buyerOnly,
			requires: requireProofRef,
			effects:  submitProofEffects,
		},
		{enums.OrderStatusPaymentRejected, enums.OrderEventSubmitProof}: {
			to:       enums.OrderStatusPendingVerification,
			actors:   buyerOnly,
			requires: requireProofRef,
			effects:  submitProofEffects,
		},
		// A new proof while awaiting review replaces the old one in place.
		{enums.OrderStatusPendingVerification, enums.OrderEventSubmitProof}: {
			to:       enums.OrderStatusPendingVerification,
			actors:   buyerOnly,
			requires: requireProofRef,
			effects:  submitProofEffects,
		},
		{enums.OrderStatusPendingVerification, enums.OrderEventApprovePayment}: {
			to:       enums.OrderStatusPaymentConfirmed,
			actors:   adminOnly,
			requires: requireStoredProof,
			effects: func(Snapshot, Input) Effects {
				return Effects{
					Stamps:                 []Stamp{StampPaymentConfirmed},
					Verification:           verification(enums.AdminVerificationApproved),
					InitSettlement:         true,
					RecordPaymentConfirmed: true,
					ClearRejectionReason:   true,
				}
			},
		},
		{enums.OrderStatusPendingVerification, enums.OrderEventRejectPayment}: {
			to:       enums.OrderStatusPaymentRejected,
			actors:   adminOnly,
			requires: requireStoredProof,
			effects: func(_ Snapshot, in Input) Effects {
				return Effects{
					Verification:    verification(enums.AdminVerificationRejected),
					RejectionReason: optionalText(in.Reason),
				}
			},
		},
		{enums.OrderStatusPaymentConfirmed, enums.OrderEventStartProcessing}: {
			to:     enums.OrderStatusProcessing,
			actors: fulfilment,
		},
		{enums.OrderStatusCODConfirmed, enums.OrderEventStartProcessing}: {
			to:     enums.OrderStatusCODProcessing,
			actors: fulfilment,
		},
		{enums.OrderStatusProcessing, enums.OrderEventShip}: {
			to:      enums.OrderStatusShipped,
			actors:  fulfilment,
			effects: stamps(StampShipped),
		},
		{enums.OrderStatusCODProcessing, enums.OrderEventShip}: {
			to:      enums.OrderStatusCODShipped,
			actors:  fulfilment,
			effects: stamps(StampShipped),
		},
		{enums.OrderStatusShipped, enums.OrderEventMarkDelivered}: {
			to:      enums.OrderStatusDelivered,
			actors:  adminOnly,
			effects: stamps(StampDelivered),
		},
		{enums.OrderStatusShipped, enums.OrderEventConfirmReceipt}: {
			to:      enums.OrderStatusCompleted,
			actors:  buyerOnly,
			effects: completeTransfer,
		},
		{enums.OrderStatusDelivered, enums.OrderEventConfirmReceipt}: {
			to:      enums.OrderStatusCompleted,
			actors:  buyerOnly,
			effects: completeTransfer,
		},
		{enums.OrderStatusCODShipped, enums.OrderEventConfirmReceipt}: {
			to:     enums.OrderStatusCODDelivered,
			actors: buyerOnly,
			effects: func(Snapshot, Input) Effects {
				return Effects{
					Stamps:               []Stamp{StampCODDelivered},
					SellerTransferStatus: transferStatus(enums.SellerTransferStatusNotRequired),
					RecordCODCollection:  true,
				}
			},
		},
	}
	for _, from := range cancellable {
		r[transitionKey{from, enums.OrderEventCancel}] = rule{
			to:     enums.OrderStatusCancelled,
			actors: buyerOrAdmin,
			effects: func(_ Snapshot, in Input) Effects {
				return Effects{
					Stamps:               []Stamp{StampCanceled},
					CancelReason:         optionalText(in.Reason),
					SellerTransferStatus: transferStatus(enums.SellerTransferStatusNotRequired),
				}
			},
		}
	}
	return r
}

// Apply validates event against the order snapshot and actor, returning the
// next status and the effects to persist. It never mutates anything.
func Apply(s Snapshot, event enums.OrderEvent, actor enums.ActorRole, in Input) (Outcome, error) {
	if !event.IsValid() {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order event %q", event))
	}
	if !s.Status.IsValid() || !onGraph(s.PaymentMethod, s.Status) {
		return Outcome{}, invalidTransition(s, event, actor, "status does not belong to the payment method graph")
	}
	if s.Status.IsTerminal() {
		return Outcome{}, invalidTransition(s, event, actor, "order is in a terminal status")
	}

	r, ok := rules[transitionKey{from: s.Status, event: event}]
	if !ok {
		return Outcome{}, invalidTransition(s, event, actor, "event not allowed from current status")
	}
	if !allowed(r.actors, actor) {
		return Outcome{}, invalidTransition(s, event, actor, "actor may not fire this event")
	}
	if r.requires != nil {
		if err := r.requires(s, event, actor, in); err != nil {
			return Outcome{}, err
		}
	}

	out := Outcome{Event: event, From: s.Status, To: r.to}
	if r.effects != nil {
		out.Effects = r.effects(s, in)
	}
	return out, nil
}

// CanApply reports whether Apply would accept the event.
func CanApply(s Snapshot, event enums.OrderEvent, actor enums.ActorRole, in Input) bool {
	_, err := Apply(s, event, actor, in)
	return err == nil
}

// AvailableEvents lists the events the actor may fire from the snapshot, in declaration order.
func AvailableEvents(s Snapshot, actor enums.ActorRole) []enums.OrderEvent {
	events := []enums.OrderEvent{}
	for _, event := range enums.OrderEvents() {
		r, ok := rules[transitionKey{from: s.Status, event: event}]
		if !ok || !allowed(r.actors, actor) || !onGraph(s.PaymentMethod, s.Status) {
			continue
		}
		events = append(events, event)
	}
	return events
}

// InitialStatus is the status a freshly created order is recorded in before any event fires.
func InitialStatus(method enums.PaymentMethod) (enums.OrderStatus, error) {
	switch method {
	case enums.PaymentMethodTransfer:
		return enums.OrderStatusPending, nil
	case enums.PaymentMethodCOD:
		return enums.OrderStatusCODConfirmed, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method))
	}
}

func onGraph(method enums.PaymentMethod, status enums.OrderStatus) bool {
	if status == enums.OrderStatusCancelled {
		return method.IsValid()
	}
	switch method {
	case enums.PaymentMethodTransfer:
		_, ok := transferStatuses[status]
		return ok
	case enums.PaymentMethodCOD:
		_, ok := codStatuses[status]
		return ok
	default:
		return false
	}
}

func allowed(actors []enums.ActorRole, actor enums.ActorRole) bool {
	for _, candidate := range actors {
		if candidate == actor {
			return true
		}
	}
	return false
}

func requireProofRef(s Snapshot, event enums.OrderEvent, actor enums.ActorRole, in Input) error {
	if strings.TrimSpace(in.ProofRef) == "" {
		return invalidTransition(s, event, actor, "payment proof reference is required")
	}
	return nil
}

func requireStoredProof(s Snapshot, _ enums.OrderEvent, _ enums.ActorRole, _ Input) error {
	if !s.HasProof {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "order has no payment proof to verify")
	}
	return nil
}

func submitProofEffects(_ Snapshot, in Input) Effects {
	ref := strings.TrimSpace(in.ProofRef)
	return Effects{
		Stamps:               []Stamp{StampProofUploaded},
		ProofRef:             &ref,
		Verification:         verification(enums.AdminVerificationPending),
		ClearRejectionReason: true,
	}
}

func completeTransfer(Snapshot, Input) Effects {
	return Effects{
		Stamps:               []Stamp{StampDelivered, StampCompleted},
		SellerTransferStatus: transferStatus(enums.SellerTransferStatusPending),
	}
}

func stamps(list ...Stamp) func(Snapshot, Input) Effects {
	return func(Snapshot, Input) Effects {
		return Effects{Stamps: list}
	}
}

func invalidTransition(s Snapshot, event enums.OrderEvent, actor enums.ActorRole, reason string) error {
	return pkgerrors.New(
		pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("cannot %s order in status %s", event, s.Status),
	).WithDetails(map[string]any{
		"from":           s.Status,
		"event":          event,
		"actor_role":     actor,
		"payment_method": s.PaymentMethod,
		"reason":         reason,
	})
}

func statusSet(statuses ...enums.OrderStatus) map[enums.OrderStatus]struct{} {
	set := make(map[enums.OrderStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

func verification(v enums.AdminVerificationStatus) *enums.AdminVerificationStatus {
	return &v
}

func transferStatus(v enums.SellerTransferStatus) *enums.SellerTransferStatus {
	return &v
}

func optionalText(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
