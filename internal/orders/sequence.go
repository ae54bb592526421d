package orders

import (
	"context"
	"fmt"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"gorm.io/gorm"
)

type orderNumberCounter interface {
	NextOrderNumber(ctx context.Context) (int64, error)
	SeedOrderNumber(ctx context.Context, floor int64) (bool, error)
}

// RedisSequence allocates order numbers from a shared Redis counter.
type RedisSequence struct {
	counter orderNumberCounter
}

// NewRedisSequence wraps a Redis client exposing NextOrderNumber.
func NewRedisSequence(counter orderNumberCounter) (*RedisSequence, error) {
	if counter == nil {
		return nil, fmt.Errorf("order number counter required")
	}
	return &RedisSequence{counter: counter}, nil
}

// Seed initializes a missing redis counter from the highest stored order number.
func (s *RedisSequence) Seed(ctx context.Context, db *gorm.DB) error {
	floor, err := maxOrderNumber(ctx, db)
	if err != nil {
		return err
	}
	if _, err := s.counter.SeedOrderNumber(ctx, floor); err != nil {
		return fmt.Errorf("seed order number: %w", err)
	}
	return nil
}

func (s *RedisSequence) Next(ctx context.Context, _ *gorm.DB) (int64, error) {
	n, err := s.counter.NextOrderNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("redis order number: %w", err)
	}
	return n, nil
}

// DBSequence allocates order numbers inside the order's own transaction. Postgres
// uses the order_number_seq sequence; SQLite takes the next value after the maximum.
type DBSequence struct{}

func (DBSequence) Next(ctx context.Context, tx *gorm.DB) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("transaction required")
	}
	if tx.Dialector.Name() == "postgres" {
		var next int64
		if err := tx.WithContext(ctx).Raw("SELECT nextval('order_number_seq')").Scan(&next).Error; err != nil {
			return 0, fmt.Errorf("order number sequence: %w", err)
		}
		return next, nil
	}
	current, err := maxOrderNumber(ctx, tx)
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

func maxOrderNumber(ctx context.Context, db *gorm.DB) (int64, error) {
	var current int64
	err := db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(MAX(order_number), 0)").
		Scan(&current).Error
	if err != nil {
		return 0, fmt.Errorf("order number max: %w", err)
	}
	return current, nil
}
