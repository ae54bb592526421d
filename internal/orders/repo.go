package orders

import (
	"context"
	"errors"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrVersionConflict is returned when a conditional update matches no row.
var ErrVersionConflict = errors.New("order version conflict")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Omit("Settlements").Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Settlements", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateVersioned applies updates only when the stored row still carries the
// expected version and status, bumping the version on success.
func (r *repository) UpdateVersioned(ctx context.Context, orderID uuid.UUID, version int, status enums.OrderStatus, updates map[string]any) error {
	if len(updates) == 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "order update requires at least one column")
	}
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ? AND status = ?", orderID, version, status).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListAwaitingTransfer pages completed transfer orders whose sellers still wait for payout,
// oldest first.
func (r *repository) ListAwaitingTransfer(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Order, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(limit)
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Settlements", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("payment_method = ? AND status = ? AND seller_transfer_status = ?",
			enums.PaymentMethodTransfer, enums.OrderStatusCompleted, enums.SellerTransferStatusPending)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var orders []models.Order
	if err := query.Order("created_at ASC, id ASC").Limit(normalized + 1).Find(&orders).Error; err != nil {
		return nil, nil, err
	}
	orders, next := pagination.Trim(orders, normalized, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return orders, next, nil
}

// ListForRevenue loads every order in the given statuses without items.
func (r *repository) ListForRevenue(ctx context.Context, statuses []enums.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	if len(statuses) == 0 {
		return orders, nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
