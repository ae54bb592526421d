package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic", SettlementsTopic: "settlements-topic"})
	require.NoError(t, err)
	return reg
}

func row(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{EventType: eventType, AggregateType: aggregate, AggregateID: uuid.New(), Payload: env}
}

func validOrderCreated() payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{
		OrderID:       uuid.New(),
		OrderNumber:   42,
		BuyerID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodTransfer,
		Status:        enums.OrderStatusPendingPayment,
		SubtotalCents: 200000,
		AdminFeeCents: 3000,
		TotalCents:    203000,
		SellerIDs:     []uuid.UUID{uuid.New()},
	}
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	created := validOrderCreated()
	resolved, err := testRegistry(t).Resolve(row(t, enums.EventOrderCreated, enums.AggregateOrder, created))
	require.NoError(t, err)

	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	assert.Equal(t, enums.EventOrderCreated, resolved.Descriptor.EventType)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())

	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, created, *payload)
}

func TestResolveRoutesPayoutsToSettlementsTopic(t *testing.T) {
	transfer := payloads.SellerTransferRecordedEvent{
		OrderID: uuid.New(),
		Transfers: []payloads.SellerTransfer{
			{SellerID: uuid.New(), AmountCents: 98500, AdminFeeCents: 1500, TransferProofRef: "bank-ref-1"},
		},
		TransferredAt: time.Date(2026, 4, 2, 11, 0, 0, 0, time.UTC),
	}
	resolved, err := testRegistry(t).Resolve(row(t, enums.EventSellerTransferRecorded, enums.AggregateSettlement, transfer))
	require.NoError(t, err)
	assert.Equal(t, "settlements-topic", resolved.Descriptor.Topic)
	assert.Equal(t, "bank-ref-1", resolved.Payload.(*payloads.SellerTransferRecordedEvent).Transfers[0].TransferProofRef)
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	noSellers := validOrderCreated()
	noSellers.SellerIDs = nil

	tests := []struct {
		name  string
		event func(t *testing.T) models.OutboxEvent
	}{
		{"unknown event type", func(t *testing.T) models.OutboxEvent {
			return row(t, enums.OutboxEventType("order_teleported"), enums.AggregateOrder, validOrderCreated())
		}},
		{"aggregate mismatch", func(t *testing.T) models.OutboxEvent {
			return row(t, enums.EventOrderCreated, enums.AggregateSettlement, validOrderCreated())
		}},
		{"missing aggregate id", func(t *testing.T) models.OutboxEvent {
			e := row(t, enums.EventOrderCreated, enums.AggregateOrder, validOrderCreated())
			e.AggregateID = uuid.Nil
			return e
		}},
		{"null payload", func(t *testing.T) models.OutboxEvent {
			return row(t, enums.EventOrderCreated, enums.AggregateOrder, nil)
		}},
		{"broken envelope", func(t *testing.T) models.OutboxEvent {
			e := row(t, enums.EventOrderCreated, enums.AggregateOrder, validOrderCreated())
			e.Payload = json.RawMessage(`{"data":`)
			return e
		}},
		{"payload fails validation", func(t *testing.T) models.OutboxEvent {
			return row(t, enums.EventOrderCreated, enums.AggregateOrder, noSellers)
		}},
		{"nested transfer fails validation", func(t *testing.T) models.OutboxEvent {
			return row(t, enums.EventSellerTransferRecorded, enums.AggregateSettlement, payloads.SellerTransferRecordedEvent{
				OrderID:   uuid.New(),
				Transfers: []payloads.SellerTransfer{{AmountCents: 100}},
			})
		}},
	}
	reg := testRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Resolve(tt.event(t))
			require.Error(t, err)
			var nonRetry NonRetryableError
			assert.True(t, errors.As(err, &nonRetry), "expected non-retryable, got %T", err)
		})
	}
}

func TestNewEventRegistryRequiresBothTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders topic")
	assert.Contains(t, err.Error(), "settlements topic")

	_, err = NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	assert.Error(t, err)
}
