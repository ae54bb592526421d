package settlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/orderflow/internal/fees"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/lifecycle"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/orderstest"
	"github.com/angelmondragon/orderflow/internal/settlement"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestApprovePaymentInitializesSettlementRows(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerA, sellerB := uuid.New(), uuid.New()

	order := w.ShipTransfer(t,
		orderstest.Item(sellerA, "Toko A", 150000, 1),
		orderstest.Item(sellerB, "Toko B", 50000, 1),
	)

	require.Len(t, order.Settlements, 2)
	var payout, feeShares int64
	for _, row := range order.Settlements {
		assert.Equal(t, enums.SettlementStatusPending, row.Status)
		assert.Nil(t, row.TransferProofRef)
		payout += row.SellerAmountCents
		feeShares += row.SellerAdminFeeCents
	}
	assert.Equal(t, order.SubtotalCents, payout+order.AdminFeeCents)
	assert.Equal(t, order.AdminFeeCents, feeShares)
	assert.Equal(t, enums.SellerTransferStatusNone, order.SellerTransferStatus)
	assert.Equal(t, 1, w.LedgerCount(t, order.ID, enums.LedgerEventTypePaymentConfirmed))
}

func TestInitializeIsIdempotent(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	order := w.ShipTransfer(t, orderstest.Item(uuid.New(), "Toko A", 40000, 2))

	err := w.Client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return w.Settlement.Initialize(context.Background(), tx, order)
	})
	require.NoError(t, err)

	assert.Len(t, w.Reload(t, order.ID).Settlements, 1)
}

func TestInitializeSkipsCODOrders(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	order := w.Place(t, enums.PaymentMethodCOD, orderstest.Item(uuid.New(), "Toko A", 50000, 1))

	err := w.Client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return w.Settlement.Initialize(context.Background(), tx, order)
	})
	require.NoError(t, err)
	assert.Empty(t, w.Reload(t, order.ID).Settlements)
}

func TestRecordSellerTransfersEqualSplit(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerA, sellerB := uuid.New(), uuid.New()

	order := w.CompleteTransfer(t,
		orderstest.Item(sellerA, "Toko A", 150000, 1),
		orderstest.Item(sellerB, "Toko B", 50000, 1),
	)
	require.Equal(t, int64(200000), order.SubtotalCents)
	require.Equal(t, int64(3000), order.AdminFeeCents)
	require.Equal(t, enums.OrderStatusCompleted, order.Status)
	require.Equal(t, enums.SellerTransferStatusPending, order.SellerTransferStatus)

	before, err := w.Settlement.GetSettlement(context.Background(), order.ID, w.Admin)
	require.NoError(t, err)
	assert.True(t, before.NeedsTransfer)
	require.Len(t, before.Sellers, 2)
	assert.Equal(t, sellerA, before.Sellers[0].SellerID)
	assert.Equal(t, sellerB, before.Sellers[1].SellerID)
	for _, entry := range before.Sellers {
		assert.Equal(t, int64(98500), entry.AmountCents)
		assert.Equal(t, int64(1500), entry.AdminFeeCents)
	}

	view, err := w.Settlement.RecordSellerTransfers(context.Background(), settlement.RecordTransfersInput{
		OrderID: order.ID,
		Proofs: map[uuid.UUID]settlement.TransferProof{
			sellerA: {Ref: "gs://payouts/a.jpg", Notes: "BCA 1234"},
			sellerB: {Ref: "gs://payouts/b.jpg"},
		},
		Actor: w.Admin,
	})
	require.NoError(t, err)

	assert.False(t, view.NeedsTransfer)
	assert.Equal(t, enums.SellerTransferStatusTransferred, view.Status)
	require.NotNil(t, view.TransferredAt)
	for _, entry := range view.Sellers {
		assert.Equal(t, enums.SettlementStatusTransferred, entry.Status)
		require.NotNil(t, entry.TransferProofRef)
		require.NotNil(t, entry.TransferredAt)
	}
	require.NotNil(t, view.Sellers[0].Notes)
	assert.Equal(t, "BCA 1234", *view.Sellers[0].Notes)
	assert.Nil(t, view.Sellers[1].Notes)

	stored := w.Reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
	assert.Equal(t, enums.SellerTransferStatusTransferred, stored.SellerTransferStatus)
	assert.Equal(t, order.Version+1, stored.Version)
	assert.Equal(t, 2, w.LedgerCount(t, order.ID, enums.LedgerEventTypeSellerPayout))
	assert.Equal(t, int64(1), w.OutboxCount(t, enums.EventSellerTransferRecorded, order.ID))
}

func TestRecordSellerTransfersProportionalSplit(t *testing.T) {
	w := orderstest.New(t, fees.ProportionalSplit{})
	sellerA, sellerB := uuid.New(), uuid.New()

	order := w.CompleteTransfer(t,
		orderstest.Item(sellerA, "Toko A", 75000, 2),
		orderstest.Item(sellerB, "Toko B", 50000, 1),
	)

	view, err := w.Settlement.GetSettlement(context.Background(), order.ID, w.Admin)
	require.NoError(t, err)
	require.Len(t, view.Sellers, 2)
	assert.Equal(t, int64(147750), view.Sellers[0].AmountCents)
	assert.Equal(t, int64(2250), view.Sellers[0].AdminFeeCents)
	assert.Equal(t, int64(49250), view.Sellers[1].AmountCents)
	assert.Equal(t, int64(750), view.Sellers[1].AdminFeeCents)
}

func TestRecordSellerTransfersPartialIsRejectedWithoutWrites(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerA, sellerB := uuid.New(), uuid.New()
	order := w.CompleteTransfer(t,
		orderstest.Item(sellerA, "Toko A", 100000, 1),
		orderstest.Item(sellerB, "Toko B", 100000, 1),
	)

	_, err := w.Settlement.RecordSellerTransfers(context.Background(), settlement.RecordTransfersInput{
		OrderID: order.ID,
		Proofs:  map[uuid.UUID]settlement.TransferProof{sellerA: {Ref: "gs://payouts/a.jpg"}},
		Actor:   w.Admin,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePartialSettlement, typed.Code())
	assert.Equal(t, map[string]any{"missing_seller_ids": []string{sellerB.String()}}, typed.Details())

	stored := w.Reload(t, order.ID)
	assert.Equal(t, enums.SellerTransferStatusPending, stored.SellerTransferStatus)
	assert.Equal(t, order.Version, stored.Version)
	for _, row := range stored.Settlements {
		assert.Equal(t, enums.SettlementStatusPending, row.Status)
		assert.Nil(t, row.TransferProofRef)
	}
	assert.Zero(t, w.LedgerCount(t, order.ID, enums.LedgerEventTypeSellerPayout))
	assert.Zero(t, w.OutboxCount(t, enums.EventSellerTransferRecorded, order.ID))
}

// failingLedger records through the real ledger until failOn calls have been made.
type failingLedger struct {
	next   orders.LedgerRecorder
	failOn int
	calls  int
}

func (f *failingLedger) RecordEvent(ctx context.Context, tx *gorm.DB, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("ledger write failed")
	}
	return f.next.RecordEvent(ctx, tx, input)
}

func TestRecordSellerTransfersRollsBackWhenCommitFailsMidway(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerA, sellerB := uuid.New(), uuid.New()
	order := w.CompleteTransfer(t,
		orderstest.Item(sellerA, "Toko A", 100000, 1),
		orderstest.Item(sellerB, "Toko B", 100000, 1),
	)

	recorder := &failingLedger{next: w.Ledger, failOn: 2}
	svc, err := settlement.NewService(settlement.ServiceParams{
		Repo:       settlement.NewRepository(w.Client.DB()),
		Orders:     w.OrderRepo,
		Tx:         w.Client,
		Outbox:     outbox.NewService(outbox.NewRepository(w.Client.DB()), nil),
		Ledger:     recorder,
		Calculator: w.Calculator,
		Clock:      w.Clock.Now,
	})
	require.NoError(t, err)

	input := settlement.RecordTransfersInput{
		OrderID: order.ID,
		Proofs: map[uuid.UUID]settlement.TransferProof{
			sellerA: {Ref: "gs://payouts/a.jpg"},
			sellerB: {Ref: "gs://payouts/b.jpg"},
		},
		Actor: w.Admin,
	}
	_, err = svc.RecordSellerTransfers(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, 2, recorder.calls)

	stored := w.Reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
	assert.Equal(t, enums.SellerTransferStatusPending, stored.SellerTransferStatus)
	assert.Nil(t, stored.TransferredAt)
	assert.Equal(t, order.Version, stored.Version)
	require.Len(t, stored.Settlements, 2)
	for _, row := range stored.Settlements {
		assert.Equal(t, enums.SettlementStatusPending, row.Status)
		assert.Nil(t, row.TransferProofRef)
		assert.Nil(t, row.TransferredAt)
	}
	assert.Zero(t, w.LedgerCount(t, order.ID, enums.LedgerEventTypeSellerPayout))
	assert.Zero(t, w.OutboxCount(t, enums.EventSellerTransferRecorded, order.ID))

	view, err := w.Settlement.RecordSellerTransfers(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, enums.SellerTransferStatusTransferred, view.Status)
	assert.Equal(t, 2, w.LedgerCount(t, order.ID, enums.LedgerEventTypeSellerPayout))
}

func TestRecordSellerTransfersRejectsBadInput(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerA, sellerB := uuid.New(), uuid.New()
	order := w.CompleteTransfer(t,
		orderstest.Item(sellerA, "Toko A", 100000, 1),
		orderstest.Item(sellerB, "Toko B", 100000, 1),
	)

	cases := []struct {
		name  string
		input settlement.RecordTransfersInput
		code  pkgerrors.Code
	}{
		{
			name: "non admin",
			input: settlement.RecordTransfersInput{
				OrderID: order.ID,
				Proofs:  map[uuid.UUID]settlement.TransferProof{sellerA: {Ref: "a"}, sellerB: {Ref: "b"}},
				Actor:   orders.Actor{ID: sellerA, Role: enums.ActorRoleSeller},
			},
			code: pkgerrors.CodeForbidden,
		},
		{
			name: "unknown order",
			input: settlement.RecordTransfersInput{
				OrderID: uuid.New(),
				Proofs:  map[uuid.UUID]settlement.TransferProof{sellerA: {Ref: "a"}},
				Actor:   w.Admin,
			},
			code: pkgerrors.CodeNotFound,
		},
		{
			name: "unknown seller",
			input: settlement.RecordTransfersInput{
				OrderID: order.ID,
				Proofs: map[uuid.UUID]settlement.TransferProof{
					sellerA:    {Ref: "a"},
					sellerB:    {Ref: "b"},
					uuid.New(): {Ref: "c"},
				},
				Actor: w.Admin,
			},
			code: pkgerrors.CodeNotFound,
		},
		{
			name: "blank proof",
			input: settlement.RecordTransfersInput{
				OrderID: order.ID,
				Proofs:  map[uuid.UUID]settlement.TransferProof{sellerA: {Ref: "a"}, sellerB: {Ref: "  "}},
				Actor:   w.Admin,
			},
			code: pkgerrors.CodePreconditionFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.Settlement.RecordSellerTransfers(context.Background(), tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.code, pkgerrors.CodeOf(err))
		})
	}

	assert.Equal(t, enums.SellerTransferStatusPending, w.Reload(t, order.ID).SellerTransferStatus)
	assert.Zero(t, w.LedgerCount(t, order.ID, enums.LedgerEventTypeSellerPayout))
}

func TestRecordSellerTransfersTwiceIsAlreadySettled(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerID := uuid.New()
	order := w.CompleteTransfer(t, orderstest.Item(sellerID, "Toko A", 100000, 1))

	_, err := w.Settlement.RecordSellerTransfer(context.Background(), order.ID, sellerID, settlement.TransferProof{Ref: "gs://payouts/a.jpg"}, w.Admin)
	require.NoError(t, err)

	_, err = w.Settlement.RecordSellerTransfer(context.Background(), order.ID, sellerID, settlement.TransferProof{Ref: "gs://payouts/other.jpg"}, w.Admin)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeAlreadySettled, pkgerrors.CodeOf(err))

	view, err := w.Settlement.GetSettlement(context.Background(), order.ID, w.Admin)
	require.NoError(t, err)
	require.Len(t, view.Sellers, 1)
	assert.Equal(t, int64(98500), view.Sellers[0].AmountCents)
	assert.Equal(t, "gs://payouts/a.jpg", *view.Sellers[0].TransferProofRef)
	assert.Equal(t, 1, w.LedgerCount(t, order.ID, enums.LedgerEventTypeSellerPayout))
}

func TestRecordSellerTransferOnMultiSellerOrderIsPartial(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerA := uuid.New()
	order := w.CompleteTransfer(t,
		orderstest.Item(sellerA, "Toko A", 100000, 1),
		orderstest.Item(uuid.New(), "Toko B", 100000, 1),
	)

	_, err := w.Settlement.RecordSellerTransfer(context.Background(), order.ID, sellerA, settlement.TransferProof{Ref: "gs://payouts/a.jpg"}, w.Admin)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePartialSettlement, pkgerrors.CodeOf(err))
}

func TestRecordSellerTransfersRequiresCompletedTransferOrder(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerID := uuid.New()
	proof := settlement.TransferProof{Ref: "gs://payouts/a.jpg"}

	shipped := w.ShipTransfer(t, orderstest.Item(sellerID, "Toko A", 100000, 1))
	_, err := w.Settlement.RecordSellerTransfer(context.Background(), shipped.ID, sellerID, proof, w.Admin)
	assert.Equal(t, pkgerrors.CodePreconditionFailed, pkgerrors.CodeOf(err))

	cod := w.Place(t, enums.PaymentMethodCOD, orderstest.Item(sellerID, "Toko A", 50000, 1))
	w.Fire(t, cod.ID, enums.OrderEventStartProcessing, w.Admin, lifecycle.Input{})
	w.Fire(t, cod.ID, enums.OrderEventShip, w.Admin, lifecycle.Input{})
	delivered := w.Fire(t, cod.ID, enums.OrderEventConfirmReceipt, w.Buyer, lifecycle.Input{})
	require.Equal(t, enums.OrderStatusCODDelivered, delivered.Status)
	require.Equal(t, enums.SellerTransferStatusNotRequired, delivered.SellerTransferStatus)

	_, err = w.Settlement.RecordSellerTransfer(context.Background(), cod.ID, sellerID, proof, w.Admin)
	assert.Equal(t, pkgerrors.CodePreconditionFailed, pkgerrors.CodeOf(err))

	view, err := w.Settlement.GetSettlement(context.Background(), cod.ID, w.Admin)
	require.NoError(t, err)
	assert.False(t, view.NeedsTransfer)
	assert.Empty(t, view.Sellers)
}

func TestGetSettlementScopesByActor(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerA, sellerB := uuid.New(), uuid.New()
	order := w.CompleteTransfer(t,
		orderstest.Item(sellerA, "Toko A", 100000, 1),
		orderstest.Item(sellerB, "Toko B", 100000, 1),
	)

	view, err := w.Settlement.GetSettlement(context.Background(), order.ID, orders.Actor{ID: sellerB, Role: enums.ActorRoleSeller})
	require.NoError(t, err)
	require.Len(t, view.Sellers, 1)
	assert.Equal(t, sellerB, view.Sellers[0].SellerID)

	_, err = w.Settlement.GetSettlement(context.Background(), order.ID, orders.Actor{ID: uuid.New(), Role: enums.ActorRoleSeller})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = w.Settlement.GetSettlement(context.Background(), order.ID, orders.Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	view, err = w.Settlement.GetSettlement(context.Background(), order.ID, w.Buyer)
	require.NoError(t, err)
	assert.Len(t, view.Sellers, 2)
}

func TestListPendingTransfersPages(t *testing.T) {
	w := orderstest.New(t, fees.EqualSplit{})
	sellerID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, w.CompleteTransfer(t, orderstest.Item(sellerID, "Toko A", 100000, 1)).ID)
	}
	w.ShipTransfer(t, orderstest.Item(sellerID, "Toko A", 100000, 1))

	first, err := w.Settlement.ListPendingTransfers(context.Background(), pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.Equal(t, ids[0], first.Orders[0].OrderID)
	assert.Equal(t, ids[1], first.Orders[1].OrderID)
	assert.Equal(t, int64(98500), first.Orders[0].PayoutCents)
	assert.Equal(t, 1, first.Orders[0].SellerCount)
	require.NotEmpty(t, first.NextCursor)

	second, err := w.Settlement.ListPendingTransfers(context.Background(), pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, ids[2], second.Orders[0].OrderID)
	assert.Empty(t, second.NextCursor)

	_, err = w.Settlement.RecordSellerTransfer(context.Background(), ids[0], sellerID, settlement.TransferProof{Ref: "gs://payouts/x.jpg"}, w.Admin)
	require.NoError(t, err)

	after, err := w.Settlement.ListPendingTransfers(context.Background(), pagination.Params{})
	require.NoError(t, err)
	require.Len(t, after.Orders, 2)
	assert.Equal(t, ids[1], after.Orders[0].OrderID)

	_, err = w.Settlement.ListPendingTransfers(context.Background(), pagination.Params{Cursor: "not-a-cursor"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
