package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow/internal/fees"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/lifecycle"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	orderNumberConstraint = "ux_orders_order_number"
	maxWriteAttempts      = 2

	// Line bounds keep price*quantity and the running subtotal inside int64.
	maxItemQuantity       = 100_000
	maxUnitPriceCents     = int64(1) << 40
	maxOrderSubtotalCents = int64(1_000_000_000_000_000)
)

// Service defines the order lifecycle operations.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Transition(ctx context.Context, req TransitionRequest) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	AvailableEvents(ctx context.Context, orderID uuid.UUID, actor Actor) ([]enums.OrderEvent, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Sequence    NumberSequence
	Calculator  *fees.Calculator
	Settlements SettlementInitializer
	Ledger      LedgerRecorder
	Metrics     *metrics.OrderMetrics
	Logger      *logger.Logger
	Clock       Clock
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	sequence    NumberSequence
	calculator  *fees.Calculator
	settlements SettlementInitializer
	ledger      LedgerRecorder
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	now         Clock
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Sequence == nil {
		return nil, fmt.Errorf("order number sequence required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement initializer required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		outbox:      params.Outbox,
		sequence:    params.Sequence,
		calculator:  params.Calculator,
		settlements: params.Settlements,
		ledger:      params.Ledger,
		metrics:     params.Metrics,
		logg:        logg,
		now:         now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	lines := make([]fees.Line, len(input.Items))
	for i, item := range input.Items {
		lines[i] = fees.Line{
			SellerID:   item.SellerID,
			StoreName:  item.StoreName,
			TotalCents: item.UnitPriceCents * int64(item.Quantity),
		}
	}
	totals, err := s.calculator.Totals(input.PaymentMethod, lines)
	if err != nil {
		return nil, err
	}

	initial, err := lifecycle.InitialStatus(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	// Transfer orders are recorded as pending and immediately handed to the buyer for payment.
	var awaiting *lifecycle.Outcome
	if input.PaymentMethod == enums.PaymentMethodTransfer {
		out, err := lifecycle.Apply(lifecycle.Snapshot{Status: initial, PaymentMethod: input.PaymentMethod}, enums.OrderEventAwaitPayment, enums.ActorRoleSystem, lifecycle.Input{})
		if err != nil {
			return nil, err
		}
		awaiting = &out
	}

	var created *models.Order
	err = s.withRetry(ctx, "create_order", func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			number, err := s.sequence.Next(ctx, tx)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
			}

			now := s.now().UTC()
			order := buildOrder(input, totals, initial, number, now)
			if awaiting != nil {
				order.Status = awaiting.To
			}

			if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
				if db.IsUniqueViolation(err, orderNumberConstraint) {
					return pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, err, "order number already taken")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
			}

			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         input.Actor.Ref(),
				OccurredAt:    now,
				Data: payloads.OrderCreatedEvent{
					OrderID:       order.ID,
					OrderNumber:   order.OrderNumber,
					BuyerID:       order.BuyerID,
					PaymentMethod: order.PaymentMethod,
					Status:        order.Status,
					SubtotalCents: order.SubtotalCents,
					AdminFeeCents: order.AdminFeeCents,
					TotalCents:    order.TotalCents,
					SellerIDs:     order.SellerIDs(),
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
			}
			if awaiting != nil {
				if err := s.emitStatusChanged(ctx, tx, order.ID, *awaiting, SystemActor, ""); err != nil {
					return err
				}
			}
			created = order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if awaiting != nil {
		s.metrics.IncTransition(string(awaiting.Event), string(awaiting.To))
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, created.ID.String()), map[string]any{
		"order_number":   created.OrderNumber,
		"payment_method": created.PaymentMethod,
		"total_cents":    created.TotalCents,
	})
	s.logg.Info(logCtx, "order created")
	return created, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) AvailableEvents(ctx context.Context, orderID uuid.UUID, actor Actor) ([]enums.OrderEvent, error) {
	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	return lifecycle.AvailableEvents(Snapshot(order), actor.Role), nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	return s.Transition(ctx, TransitionRequest{
		OrderID: orderID,
		Event:   enums.OrderEventCancel,
		Actor:   actor,
		Input:   lifecycle.Input{Reason: reason},
	})
}

// Transition loads the order, runs the state machine and persists the outcome
// with a version-guarded update. A lost race is retried once from a fresh read.
func (s *service) Transition(ctx context.Context, req TransitionRequest) (*models.Order, error) {
	if req.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := validateActor(req.Actor); err != nil {
		return nil, err
	}

	var (
		result  *models.Order
		outcome lifecycle.Outcome
		applied bool
	)
	err := s.withRetry(ctx, string(req.Event), func() error {
		applied = false
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := s.load(ctx, repo, req.OrderID)
			if err != nil {
				return err
			}
			if err := Authorize(order, req.Actor); err != nil {
				return err
			}
			if req.Guard != nil {
				if err := req.Guard(order); err != nil {
					return err
				}
			}
			if req.Skip != nil && req.Skip(order) {
				result = order
				return nil
			}

			out, err := lifecycle.Apply(Snapshot(order), req.Event, req.Actor.Role, req.Input)
			if err != nil {
				s.metrics.IncRejected(string(req.Event))
				return err
			}

			now := s.now().UTC()
			updates := buildUpdates(order, out, now)
			if err := repo.UpdateVersioned(ctx, order.ID, order.Version, order.Status, updates); err != nil {
				if errors.Is(err, ErrVersionConflict) {
					return pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, err, "order was modified concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
			}

			updated, err := s.load(ctx, repo, order.ID)
			if err != nil {
				return err
			}
			if err := s.applyEffects(ctx, tx, updated, out, req.Actor); err != nil {
				return err
			}
			if out.Changed() {
				if err := s.emitStatusChanged(ctx, tx, updated.ID, out, req.Actor, req.Input.Reason); err != nil {
					return err
				}
			}
			if req.AfterApply != nil {
				if err := req.AfterApply(ctx, tx, order, updated, out); err != nil {
					return err
				}
			}
			if out.Effects.InitSettlement {
				// Settlement rows were written after the reload.
				if updated, err = s.load(ctx, repo, order.ID); err != nil {
					return err
				}
			}
			result = updated
			outcome = out
			applied = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.metrics.IncTransition(string(outcome.Event), string(outcome.To))
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, result.ID.String()), map[string]any{
			"event":      outcome.Event,
			"from":       outcome.From,
			"to":         outcome.To,
			"actor_role": req.Actor.Role,
		})
		s.logg.Info(logCtx, "order transitioned")
	}
	return result, nil
}

func (s *service) applyEffects(ctx context.Context, tx *gorm.DB, order *models.Order, out lifecycle.Outcome, actor Actor) error {
	if out.Effects.InitSettlement {
		if err := s.settlements.Initialize(ctx, tx, order); err != nil {
			return err
		}
	}
	if out.Effects.RecordPaymentConfirmed {
		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID:     order.ID,
			ActorID:     actor.ID,
			Type:        enums.LedgerEventTypePaymentConfirmed,
			AmountCents: order.TotalCents,
		}); err != nil {
			return err
		}
	}
	if out.Effects.RecordCODCollection {
		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID:     order.ID,
			ActorID:     actor.ID,
			Type:        enums.LedgerEventTypeCODCollected,
			AmountCents: order.TotalCents,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, out lifecycle.Outcome, actor Actor, reason string) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor.Ref(),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:   orderID,
			Event:     out.Event,
			From:      out.From,
			To:        out.To,
			ActorRole: actor.Role,
			Reason:    strings.TrimSpace(reason),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) withRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = fn()
		if err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) {
			return err
		}
		s.metrics.IncConflict(operation)
		if attempt < maxWriteAttempts {
			s.logg.Warn(s.logg.WithField(ctx, "operation", operation), "order write conflict, retrying")
		}
	}
	return err
}

// Authorize checks that the actor may see and act on the order. Buyers only reach
// their own orders and sellers only orders containing their items.
func Authorize(order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return nil
	case enums.ActorRoleBuyer:
		if order.BuyerID == actor.ID {
			return nil
		}
	case enums.ActorRoleSeller:
		for _, sellerID := range order.SellerIDs() {
			if sellerID == actor.ID {
				return nil
			}
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown actor role %q", actor.Role))
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to actor")
}

func validateActor(actor Actor) error {
	if !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor role required")
	}
	if actor.Role != enums.ActorRoleSystem && actor.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	return nil
}

func validateCreate(input CreateOrderInput) error {
	if err := validateActor(input.Actor); err != nil {
		return err
	}
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	switch input.Actor.Role {
	case enums.ActorRoleBuyer:
		if input.Actor.ID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "buyers may only place their own orders")
		}
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "actor may not place orders")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.PaymentMethod))
	}
	if input.Currency != "" && !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", input.Currency))
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	var subtotal int64
	for i, item := range input.Items {
		switch {
		case item.SellerID == uuid.Nil:
			return itemError(i, "seller id required")
		case item.ProductID == uuid.Nil:
			return itemError(i, "product id required")
		case strings.TrimSpace(item.ProductName) == "":
			return itemError(i, "product name required")
		case item.Quantity <= 0:
			return itemError(i, "quantity must be positive")
		case item.UnitPriceCents < 0:
			return itemError(i, "unit price must not be negative")
		case item.Quantity > maxItemQuantity:
			return itemError(i, fmt.Sprintf("quantity must be at most %d", maxItemQuantity))
		case item.UnitPriceCents > maxUnitPriceCents:
			return itemError(i, fmt.Sprintf("unit price must be at most %d cents", maxUnitPriceCents))
		}
		subtotal += item.UnitPriceCents * int64(item.Quantity)
		if subtotal > maxOrderSubtotalCents {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order subtotal must be at most %d cents", maxOrderSubtotalCents))
		}
	}
	return nil
}

func itemError(index int, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: %s", index, msg)).
		WithDetails(map[string]any{"item_index": index})
}

func buildOrder(input CreateOrderInput, totals fees.Totals, status enums.OrderStatus, number int64, now time.Time) *models.Order {
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyIDR
	}
	verification := enums.AdminVerificationPending
	transferStatus := enums.SellerTransferStatusNone
	if input.PaymentMethod == enums.PaymentMethodCOD {
		verification = enums.AdminVerificationNotRequired
		transferStatus = enums.SellerTransferStatusNotRequired
	}

	order := &models.Order{
		ID:                      uuid.New(),
		OrderNumber:             number,
		BuyerID:                 input.BuyerID,
		PaymentMethod:           input.PaymentMethod,
		Status:                  status,
		Version:                 1,
		Currency:                currency,
		SubtotalCents:           totals.SubtotalCents,
		AdminFeeCents:           totals.AdminFeeCents,
		AdminFeeRateBPS:         totals.AdminFeeRateBPS,
		TotalCents:              totals.TotalCents,
		AdminVerificationStatus: verification,
		SellerTransferStatus:    transferStatus,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	order.Items = make([]models.OrderItem, len(input.Items))
	for i, item := range input.Items {
		order.Items[i] = models.OrderItem{
			ID:              uuid.New(),
			OrderID:         order.ID,
			SellerID:        item.SellerID,
			StoreName:       strings.TrimSpace(item.StoreName),
			ProductID:       item.ProductID,
			ProductName:     strings.TrimSpace(item.ProductName),
			SelectedVariant: item.SelectedVariant,
			UnitPriceCents:  item.UnitPriceCents,
			Quantity:        item.Quantity,
			TotalCents:      item.UnitPriceCents * int64(item.Quantity),
			Position:        i,
			CreatedAt:       now,
		}
	}
	return order
}
