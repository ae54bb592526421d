package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow/internal/fees"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxCommitAttempts = 2

// Service tracks seller payouts independently of the buyer-facing order status.
type Service interface {
	Initialize(ctx context.Context, tx *gorm.DB, order *models.Order) error
	RecordSellerTransfers(ctx context.Context, input RecordTransfersInput) (*Settlement, error)
	RecordSellerTransfer(ctx context.Context, orderID, sellerID uuid.UUID, proof TransferProof, actor orders.Actor) (*Settlement, error)
	GetSettlement(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*Settlement, error)
	ListPendingTransfers(ctx context.Context, params pagination.Params) (*PendingTransferList, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the settlement service.
type ServiceParams struct {
	Repo       Repository
	Orders     orders.Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Ledger     orders.LedgerRecorder
	Calculator *fees.Calculator
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	Clock      orders.Clock
}

type service struct {
	repo       Repository
	orders     orders.Repository
	tx         txRunner
	outbox     outboxPublisher
	ledger     orders.LedgerRecorder
	calculator *fees.Calculator
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        orders.Clock
}

// NewService builds the settlement tracker.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("fee calculator required")
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
		repo:       params.Repo,
		orders:     params.Orders,
		tx:         params.Tx,
		outbox:     params.Outbox,
		ledger:     params.Ledger,
		calculator: params.Calculator,
		metrics:    params.Metrics,
		logg:       logg,
		now:        now,
	}, nil
}

// Initialize creates one pending row per seller when a transfer order's payment
// is confirmed. Calling it again for the same order is a no-op.
func (s *service) Initialize(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}
	if order.PaymentMethod != enums.PaymentMethodTransfer {
		return nil
	}
	repo := s.repo.WithTx(tx)
	existing, err := repo.ListByOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlements")
	}
	if len(existing) > 0 {
		return nil
	}

	shares, err := s.calculator.Split(order.SubtotalCents, order.AdminFeeCents, linesOf(order))
	if err != nil {
		return err
	}
	now := s.now().UTC()
	rows := make([]models.SellerSettlement, len(shares))
	for i, share := range shares {
		rows[i] = models.SellerSettlement{
			ID:                  uuid.New(),
			OrderID:             order.ID,
			SellerID:            share.SellerID,
			StoreName:           share.StoreName,
			SellerAmountCents:   share.AmountCents,
			SellerAdminFeeCents: share.AdminFeeCents,
			Status:              enums.SettlementStatusPending,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
	}
	if err := repo.CreateMany(ctx, rows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlements")
	}
	return nil
}

// RecordSellerTransfers commits proofs for every seller of the order at once.
// Nothing is written unless every seller is covered.
func (s *service) RecordSellerTransfers(ctx context.Context, input RecordTransfersInput) (*Settlement, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins record seller transfers")
	}
	if input.Actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var view *Settlement
	err := s.withRetry(ctx, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.loadOrder(ctx, s.orders.WithTx(tx), input.OrderID)
			if err != nil {
				return err
			}
			rows, err := s.checkCommit(order, input.Proofs)
			if err != nil {
				return err
			}

			now := s.now().UTC()
			repo := s.repo.WithTx(tx)
			transfers := make([]payloads.SellerTransfer, 0, len(rows))
			for _, row := range rows {
				proof := input.Proofs[row.SellerID]
				ref := strings.TrimSpace(proof.Ref)
				ok, err := repo.MarkTransferred(ctx, MarkTransferredInput{
					SettlementID:  row.ID,
					ProofRef:      ref,
					Notes:         optional(proof.Notes),
					TransferredAt: now,
					TransferredBy: input.Actor.ID,
				})
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark settlement transferred")
				}
				if !ok {
					return pkgerrors.New(pkgerrors.CodeConcurrentModification, "settlement was modified concurrently")
				}

				sellerID := row.SellerID
				if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
					OrderID:     order.ID,
					SellerID:    &sellerID,
					ActorID:     input.Actor.ID,
					Type:        enums.LedgerEventTypeSellerPayout,
					AmountCents: row.SellerAmountCents,
				}); err != nil {
					return err
				}
				transfers = append(transfers, payloads.SellerTransfer{
					SellerID:         row.SellerID,
					AmountCents:      row.SellerAmountCents,
					AdminFeeCents:    row.SellerAdminFeeCents,
					TransferProofRef: ref,
				})
			}

			err = s.orders.WithTx(tx).UpdateVersioned(ctx, order.ID, order.Version, order.Status, map[string]any{
				"seller_transfer_status": enums.SellerTransferStatusTransferred,
				"transferred_at":         now,
				"updated_at":             now,
			})
			if err != nil {
				if errors.Is(err, orders.ErrVersionConflict) {
					return pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, err, "order was modified concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order transferred")
			}

			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSellerTransferRecorded,
				AggregateType: enums.AggregateSettlement,
				AggregateID:   order.ID,
				Actor:         input.Actor.Ref(),
				OccurredAt:    now,
				Data: payloads.SellerTransferRecordedEvent{
					OrderID:       order.ID,
					Transfers:     transfers,
					TransferredAt: now,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit seller transfer recorded")
			}

			updated, err := s.loadOrder(ctx, s.orders.WithTx(tx), order.ID)
			if err != nil {
				return err
			}
			view = buildView(updated)
			return nil
		})
	})
	if err != nil {
		s.metrics.IncSettlement(settlementResult(err))
		return nil, err
	}

	s.metrics.IncSettlement("committed")
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
		"sellers":  len(view.Sellers),
		"actor_id": input.Actor.ID.String(),
	})
	s.logg.Info(logCtx, "seller transfers recorded")
	return view, nil
}

// RecordSellerTransfer settles a single-seller order.
func (s *service) RecordSellerTransfer(ctx context.Context, orderID, sellerID uuid.UUID, proof TransferProof, actor orders.Actor) (*Settlement, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	return s.RecordSellerTransfers(ctx, RecordTransfersInput{
		OrderID: orderID,
		Proofs:  map[uuid.UUID]TransferProof{sellerID: proof},
		Actor:   actor,
	})
}

func (s *service) GetSettlement(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*Settlement, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if err := orders.Authorize(order, actor); err != nil {
		return nil, err
	}
	view := buildView(order)
	if actor.Role == enums.ActorRoleSeller {
		view.Sellers = onlySeller(view.Sellers, actor.ID)
	}
	return view, nil
}

func (s *service) ListPendingTransfers(ctx context.Context, params pagination.Params) (*PendingTransferList, error) {
	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := s.orders.ListAwaitingTransfer(ctx, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending transfers")
	}

	list := &PendingTransferList{Orders: make([]PendingTransfer, 0, len(rows))}
	for _, order := range rows {
		var payout int64
		for _, row := range order.Settlements {
			payout += row.SellerAmountCents
		}
		list.Orders = append(list.Orders, PendingTransfer{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			TotalCents:    order.TotalCents,
			AdminFeeCents: order.AdminFeeCents,
			PayoutCents:   payout,
			SellerCount:   len(order.Settlements),
			CompletedAt:   order.CompletedAt,
			CreatedAt:     order.CreatedAt,
		})
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// checkCommit validates the order and proofs, returning the rows to settle in seller order.
func (s *service) checkCommit(order *models.Order, proofs map[uuid.UUID]TransferProof) ([]models.SellerSettlement, error) {
	if order.SellerTransferStatus == enums.SellerTransferStatusTransferred {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "order sellers were already paid out")
	}
	if order.PaymentMethod != enums.PaymentMethodTransfer {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, "cash on delivery orders are settled by the seller at delivery")
	}
	if order.Status != enums.OrderStatusCompleted || order.SellerTransferStatus != enums.SellerTransferStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, "order is not awaiting seller transfer").
			WithDetails(map[string]any{"status": order.Status, "seller_transfer_status": order.SellerTransferStatus})
	}
	if len(order.Settlements) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, "order has no settlement rows")
	}

	rows := sortedRows(order)
	bySeller := make(map[uuid.UUID]models.SellerSettlement, len(rows))
	for _, row := range rows {
		if row.Status == enums.SettlementStatusTransferred {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "seller was already paid out").
				WithDetails(map[string]any{"seller_id": row.SellerID})
		}
		bySeller[row.SellerID] = row
	}

	unknown := make([]string, 0)
	for sellerID := range proofs {
		if _, ok := bySeller[sellerID]; !ok {
			unknown = append(unknown, sellerID.String())
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller is not part of this order").
			WithDetails(map[string]any{"seller_ids": unknown})
	}

	missing := make([]string, 0)
	for _, row := range rows {
		if _, ok := proofs[row.SellerID]; !ok {
			missing = append(missing, row.SellerID.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodePartialSettlement, "every seller of the order needs a transfer proof").
			WithDetails(map[string]any{"missing_seller_ids": missing})
	}

	for _, row := range rows {
		if strings.TrimSpace(proofs[row.SellerID].Ref) == "" {
			return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, "transfer proof reference is required").
				WithDetails(map[string]any{"seller_id": row.SellerID})
		}
	}
	return rows, nil
}

func (s *service) loadOrder(ctx context.Context, repo orders.Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		err = fn()
		if err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) {
			return err
		}
		s.metrics.IncConflict("record_seller_transfers")
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "settlement commit conflict")
	}
	return err
}

func settlementResult(err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodePartialSettlement:
		return "partial_rejected"
	case pkgerrors.CodeAlreadySettled:
		return "already_settled"
	case pkgerrors.CodeConcurrentModification:
		return "conflict"
	default:
		return "failed"
	}
}

func buildView(order *models.Order) *Settlement {
	view := &Settlement{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentMethod: order.PaymentMethod,
		NeedsTransfer: order.SellerTransferStatus == enums.SellerTransferStatusPending,
		Status:        order.SellerTransferStatus,
		TransferredAt: order.TransferredAt,
		Sellers:       make([]SellerEntry, 0, len(order.Settlements)),
	}
	for _, row := range sortedRows(order) {
		view.Sellers = append(view.Sellers, SellerEntry{
			SellerID:         row.SellerID,
			StoreName:        row.StoreName,
			AmountCents:      row.SellerAmountCents,
			AdminFeeCents:    row.SellerAdminFeeCents,
			Status:           row.Status,
			TransferProofRef: row.TransferProofRef,
			Notes:            row.Notes,
			TransferredAt:    row.TransferredAt,
		})
	}
	return view
}

// sortedRows orders settlement rows by the seller's first appearance in the items.
func sortedRows(order *models.Order) []models.SellerSettlement {
	rank := make(map[uuid.UUID]int, len(order.Items))
	for i, sellerID := range order.SellerIDs() {
		rank[sellerID] = i
	}
	rows := make([]models.SellerSettlement, len(order.Settlements))
	copy(rows, order.Settlements)
	sort.SliceStable(rows, func(a, b int) bool {
		return rank[rows[a].SellerID] < rank[rows[b].SellerID]
	})
	return rows
}

func onlySeller(entries []SellerEntry, sellerID uuid.UUID) []SellerEntry {
	out := make([]SellerEntry, 0, 1)
	for _, entry := range entries {
		if entry.SellerID == sellerID {
			out = append(out, entry)
		}
	}
	return out
}

func linesOf(order *models.Order) []fees.Line {
	lines := make([]fees.Line, len(order.Items))
	for i, item := range order.Items {
		lines[i] = fees.Line{
			SellerID:   item.SellerID,
			StoreName:  item.StoreName,
			TotalCents: item.TotalCents,
		}
	}
	return lines
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
