package revenue

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

const trailingMonths = 12

// MonthBucket is one calendar month of admin fee revenue, keyed YYYY-MM.
type MonthBucket struct {
	Month             string `json:"month"`
	AdminRevenueCents int64  `json:"admin_revenue_cents"`
	Transactions      int    `json:"transactions"`
}

// Stats is the admin revenue report derived from a full order scan.
type Stats struct {
	TotalAdminRevenueCents        int64         `json:"total_admin_revenue_cents"`
	MonthAdminRevenueCents        int64         `json:"month_admin_revenue_cents"`
	WeekAdminRevenueCents         int64         `json:"week_admin_revenue_cents"`
	DayAdminRevenueCents          int64         `json:"day_admin_revenue_cents"`
	CompletedTransactions         int           `json:"completed_transactions"`
	AverageAdminFeePerTransaction int64         `json:"average_admin_fee_per_transaction_cents"`
	GrossTransactionValueCents    int64         `json:"gross_transaction_value_cents"`
	Monthly                       []MonthBucket `json:"monthly"`
	Timezone                      string        `json:"timezone"`
	GeneratedAt                   time.Time     `json:"generated_at"`
}

// ScannedStatuses are the statuses whose orders feed the report.
var ScannedStatuses = []enums.OrderStatus{
	enums.OrderStatusCompleted,
	enums.OrderStatusDelivered,
	enums.OrderStatusCODDelivered,
}

// Aggregate builds the report as seen at now in loc. Admin revenue comes from
// transfer orders that are completed or delivered; COD deliveries only add to GTV.
func Aggregate(orders []models.Order, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	weekStart := dayStart.AddDate(0, 0, -int(dayStart.Weekday()))
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)

	stats := Stats{
		Monthly:     make([]MonthBucket, trailingMonths),
		Timezone:    loc.String(),
		GeneratedAt: now.UTC(),
	}
	index := make(map[string]int, trailingMonths)
	for i := 0; i < trailingMonths; i++ {
		key := monthStart.AddDate(0, i-(trailingMonths-1), 0).Format("2006-01")
		stats.Monthly[i] = MonthBucket{Month: key}
		index[key] = i
	}

	for i := range orders {
		order := &orders[i]
		if order.PaymentMethod == enums.PaymentMethodCOD {
			if order.Status == enums.OrderStatusCODDelivered {
				stats.GrossTransactionValueCents += order.TotalCents
			}
			continue
		}
		if order.Status != enums.OrderStatusCompleted && order.Status != enums.OrderStatusDelivered {
			continue
		}

		fee := order.AdminFeeCents
		stats.GrossTransactionValueCents += order.TotalCents
		stats.TotalAdminRevenueCents += fee
		stats.CompletedTransactions++

		at := RevenueTime(order).In(loc)
		if !at.Before(monthStart) {
			stats.MonthAdminRevenueCents += fee
		}
		if !at.Before(weekStart) {
			stats.WeekAdminRevenueCents += fee
		}
		if !at.Before(dayStart) {
			stats.DayAdminRevenueCents += fee
		}
		if i, ok := index[at.Format("2006-01")]; ok {
			stats.Monthly[i].AdminRevenueCents += fee
			stats.Monthly[i].Transactions++
		}
	}

	if stats.CompletedTransactions > 0 {
		stats.AverageAdminFeePerTransaction = decimal.NewFromInt(stats.TotalAdminRevenueCents).
			Div(decimal.NewFromInt(int64(stats.CompletedTransactions))).
			Round(0).
			IntPart()
	}
	return stats
}

// RevenueTime is when an order's fee counts as earned.
func RevenueTime(order *models.Order) time.Time {
	switch {
	case order.CompletedAt != nil:
		return *order.CompletedAt
	case order.DeliveredAt != nil:
		return *order.DeliveredAt
	default:
		return order.UpdatedAt
	}
}
