package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const payoutConstraint = "ux_ledger_events_payout"

// Service defines operations that record ledger events.
type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	OrderID     uuid.UUID             `json:"order_id"`
	SellerID    *uuid.UUID            `json:"seller_id,omitempty"`
	ActorID     uuid.UUID             `json:"actor_id"`
	Type        enums.LedgerEventType `json:"type"`
	AmountCents int64                 `json:"amount_cents"`
	Metadata    json.RawMessage       `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, now: now}, nil
}

// RecordEvent appends an event using tx when provided so it commits with the
// money movement it describes.
func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.AmountCents < 0 {
		return nil, fmt.Errorf("ledger amount must not be negative")
	}
	if input.Type == enums.LedgerEventTypeSellerPayout && (input.SellerID == nil || *input.SellerID == uuid.Nil) {
		return nil, fmt.Errorf("seller id is required for payouts")
	}

	event := &models.LedgerEvent{
		OrderID:     input.OrderID,
		SellerID:    input.SellerID,
		ActorID:     input.ActorID,
		Type:        input.Type,
		AmountCents: input.AmountCents,
		Metadata:    input.Metadata,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		if db.IsUniqueViolation(err, payoutConstraint) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeAlreadySettled, err, "seller payout already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger event")
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}

	events, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	events, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger events")
	}
	return events, nil
}
