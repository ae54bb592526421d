// Package orderstest wires the order pipeline onto a throwaway SQLite database
// for service and handler tests.
package orderstest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/internal/fees"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/lifecycle"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/internal/settlement"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/outbox"
)

// Clock advances one second on every reading so rows get distinct timestamps.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts the clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// Set moves the clock to t; the next reading is t plus one second.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// World holds every service of the pipeline sharing one database.
type World struct {
	Client     *db.Client
	Clock      *Clock
	Calculator *fees.Calculator
	OrderRepo  orders.Repository
	Orders     orders.Service
	Payments   payments.Service
	Settlement settlement.Service
	Ledger     ledger.Service
	Admin      orders.Actor
	Buyer      orders.Actor
}

// New builds a World splitting multi-seller payouts with policy.
func New(t testing.TB, policy fees.SplitPolicy) *World {
	t.Helper()

	client := dbtest.Open(t)
	clock := NewClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))

	calc, err := fees.NewCalculator(fees.DefaultRateBPS, policy)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(client.DB()), clock.Now)
	require.NoError(t, err)
	orderRepo := orders.NewRepository(client.DB())
	publisher := outbox.NewService(outbox.NewRepository(client.DB()), nil)

	settleSvc, err := settlement.NewService(settlement.ServiceParams{
		Repo:       settlement.NewRepository(client.DB()),
		Orders:     orderRepo,
		Tx:         client,
		Outbox:     publisher,
		Ledger:     ledgerSvc,
		Calculator: calc,
		Clock:      clock.Now,
	})
	require.NoError(t, err)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:        orderRepo,
		Tx:          client,
		Outbox:      publisher,
		Sequence:    orders.DBSequence{},
		Calculator:  calc,
		Settlements: settleSvc,
		Ledger:      ledgerSvc,
		Clock:       clock.Now,
	})
	require.NoError(t, err)

	paymentSvc, err := payments.NewService(orderSvc, publisher, nil)
	require.NoError(t, err)

	return &World{
		Client:     client,
		Clock:      clock,
		Calculator: calc,
		OrderRepo:  orderRepo,
		Orders:     orderSvc,
		Payments:   paymentSvc,
		Settlement: settleSvc,
		Ledger:     ledgerSvc,
		Admin:      orders.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin},
		Buyer:      orders.Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer},
	}
}

// Item builds one order line.
func Item(sellerID uuid.UUID, store string, unitPrice int64, qty int) orders.ItemInput {
	return orders.ItemInput{
		SellerID:       sellerID,
		StoreName:      store,
		ProductID:      uuid.New(),
		ProductName:    store + " product",
		UnitPriceCents: unitPrice,
		Quantity:       qty,
	}
}

// Place creates an order for the world's buyer.
func (w *World) Place(t testing.TB, method enums.PaymentMethod, items ...orders.ItemInput) *models.Order {
	t.Helper()
	order, err := w.Orders.CreateOrder(context.Background(), orders.CreateOrderInput{
		BuyerID:       w.Buyer.ID,
		PaymentMethod: method,
		Items:         items,
		Actor:         w.Buyer,
	})
	require.NoError(t, err)
	return order
}

// Fire applies event and fails the test on error.
func (w *World) Fire(t testing.TB, orderID uuid.UUID, event enums.OrderEvent, actor orders.Actor, in lifecycle.Input) *models.Order {
	t.Helper()
	order, err := w.Orders.Transition(context.Background(), orders.TransitionRequest{
		OrderID: orderID,
		Event:   event,
		Actor:   actor,
		Input:   in,
	})
	require.NoError(t, err)
	return order
}

// ConfirmTransfer places a transfer order, submits a proof and approves it.
func (w *World) ConfirmTransfer(t testing.TB, items ...orders.ItemInput) *models.Order {
	t.Helper()
	order := w.Place(t, enums.PaymentMethodTransfer, items...)
	_, err := w.Payments.SubmitProof(context.Background(), payments.SubmitProofInput{
		OrderID:  order.ID,
		ProofRef: "gs://proofs/" + order.ID.String() + ".jpg",
		Actor:    w.Buyer,
	})
	require.NoError(t, err)
	confirmed, err := w.Payments.VerifyPayment(context.Background(), payments.VerifyPaymentInput{
		OrderID:  order.ID,
		Decision: enums.PaymentDecisionApprove,
		Actor:    w.Admin,
	})
	require.NoError(t, err)
	return confirmed
}

// ShipTransfer pays for a transfer order and ships it.
func (w *World) ShipTransfer(t testing.TB, items ...orders.ItemInput) *models.Order {
	t.Helper()
	order := w.ConfirmTransfer(t, items...)
	w.Fire(t, order.ID, enums.OrderEventStartProcessing, w.Admin, lifecycle.Input{})
	return w.Fire(t, order.ID, enums.OrderEventShip, w.Admin, lifecycle.Input{})
}

// CompleteTransfer drives a transfer order until the buyer confirms receipt.
func (w *World) CompleteTransfer(t testing.TB, items ...orders.ItemInput) *models.Order {
	t.Helper()
	order := w.ShipTransfer(t, items...)
	return w.Fire(t, order.ID, enums.OrderEventConfirmReceipt, w.Buyer, lifecycle.Input{})
}

// DeliverCOD drives a cash on delivery order to cod_delivered.
func (w *World) DeliverCOD(t testing.TB, items ...orders.ItemInput) *models.Order {
	t.Helper()
	order := w.Place(t, enums.PaymentMethodCOD, items...)
	w.Fire(t, order.ID, enums.OrderEventStartProcessing, w.Admin, lifecycle.Input{})
	w.Fire(t, order.ID, enums.OrderEventShip, w.Admin, lifecycle.Input{})
	return w.Fire(t, order.ID, enums.OrderEventConfirmReceipt, w.Buyer, lifecycle.Input{})
}

// Reload reads the order back as an admin.
func (w *World) Reload(t testing.TB, orderID uuid.UUID) *models.Order {
	t.Helper()
	order, err := w.Orders.GetOrder(context.Background(), orderID, w.Admin)
	require.NoError(t, err)
	return order
}

// OutboxCount counts queued events of one type for an aggregate.
func (w *World) OutboxCount(t testing.TB, eventType enums.OutboxEventType, aggregateID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, w.Client.DB().
		Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", eventType, aggregateID).
		Count(&n).Error)
	return n
}

// LedgerCount counts ledger events of one type for an order.
func (w *World) LedgerCount(t testing.TB, orderID uuid.UUID, eventType enums.LedgerEventType) int {
	t.Helper()
	events, err := w.Ledger.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	n := 0
	for _, event := range events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}
