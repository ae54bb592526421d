package orders

import (
	"context"

	"github.com/angelmondragon/orderflow/internal/lifecycle"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actor is the caller on whose behalf an operation runs. The role is always
// passed explicitly; nothing reads it from ambient state.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// SystemActor is used for transitions the service fires on its own.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

// Ref converts the actor into the outbox envelope form.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{ActorID: a.ID, Role: a.Role}
}

// ItemInput is one product line of a new order.
type ItemInput struct {
	SellerID        uuid.UUID
	StoreName       string
	ProductID       uuid.UUID
	ProductName     string
	SelectedVariant *string
	UnitPriceCents  int64
	Quantity        int
}

// CreateOrderInput captures everything needed to place an order.
type CreateOrderInput struct {
	BuyerID       uuid.UUID
	PaymentMethod enums.PaymentMethod
	Currency      enums.Currency
	Items         []ItemInput
	Actor         Actor
}

// TransitionRequest raises one lifecycle event against an order.
type TransitionRequest struct {
	OrderID uuid.UUID
	Event   enums.OrderEvent
	Actor   Actor
	Input   lifecycle.Input

	// Guard runs against the freshly loaded order before the state machine and
	// aborts the transition with its error.
	Guard func(order *models.Order) error

	// Skip reports whether the stored order already reflects the request. The
	// order is then returned unchanged and nothing is written.
	Skip func(order *models.Order) bool

	// AfterApply runs inside the transaction after the order row and its
	// effects are written.
	AfterApply func(ctx context.Context, tx *gorm.DB, before, after *models.Order, outcome lifecycle.Outcome) error
}

// Snapshot extracts the state machine view of an order.
func Snapshot(order *models.Order) lifecycle.Snapshot {
	return lifecycle.Snapshot{
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		HasProof:      order.PaymentProofRef != nil && *order.PaymentProofRef != "",
	}
}
