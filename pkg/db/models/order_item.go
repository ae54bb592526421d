package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is an immutable snapshot of a purchased product line.
type OrderItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	SellerID        uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	StoreName       string    `gorm:"column:store_name;not null"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName     string    `gorm:"column:product_name;not null"`
	SelectedVariant *string   `gorm:"column:selected_variant"`
	UnitPriceCents  int64     `gorm:"column:unit_price_cents;not null"`
	Quantity        int       `gorm:"column:quantity;not null"`
	TotalCents      int64     `gorm:"column:total_cents;not null"`
	Position        int       `gorm:"column:position;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}
