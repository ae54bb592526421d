package settlement

import (
	"context"
	"time"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists per-seller settlement rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateMany(ctx context.Context, rows []models.SellerSettlement) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.SellerSettlement, error)
	MarkTransferred(ctx context.Context, input MarkTransferredInput) (bool, error)
}

// MarkTransferredInput is the proof recorded against one pending settlement row.
type MarkTransferredInput struct {
	SettlementID  uuid.UUID
	ProofRef      string
	Notes         *string
	TransferredAt time.Time
	TransferredBy uuid.UUID
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateMany(ctx context.Context, rows []models.SellerSettlement) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.SellerSettlement, error) {
	var rows []models.SellerSettlement
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkTransferred flips a pending row to transferred. It reports false when the
// row was no longer pending.
func (r *repository) MarkTransferred(ctx context.Context, input MarkTransferredInput) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SellerSettlement{}).
		Where("id = ? AND status = ?", input.SettlementID, enums.SettlementStatusPending).
		Updates(map[string]any{
			"status":             enums.SettlementStatusTransferred,
			"transfer_proof_ref": input.ProofRef,
			"notes":              input.Notes,
			"transferred_at":     input.TransferredAt,
			"transferred_by":     input.TransferredBy,
			"updated_at":         input.TransferredAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
