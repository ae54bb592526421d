package revenue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/metrics"
)

var wib = time.FixedZone("WIB", 7*60*60)

func at(year int, month time.Month, day, hour, minute int) *time.Time {
	t := time.Date(year, month, day, hour, minute, 0, 0, wib)
	return &t
}

func transferOrder(status enums.OrderStatus, fee int64, completed, delivered *time.Time) models.Order {
	return models.Order{
		PaymentMethod: enums.PaymentMethodTransfer,
		Status:        status,
		AdminFeeCents: fee,
		TotalCents:    100000,
		CompletedAt:   completed,
		DeliveredAt:   delivered,
		UpdatedAt:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func sampleOrders() []models.Order {
	updatedOnly := transferOrder(enums.OrderStatusCompleted, 100, nil, nil)
	updatedOnly.UpdatedAt = *at(2026, 5, 13, 1, 0)

	return []models.Order{
		transferOrder(enums.OrderStatusCompleted, 1500, at(2026, 5, 13, 10, 0), nil),
		// Sunday just after midnight local time, still Saturday in UTC.
		transferOrder(enums.OrderStatusCompleted, 3000, at(2026, 5, 10, 0, 30), nil),
		transferOrder(enums.OrderStatusDelivered, 750, nil, at(2026, 5, 2, 9, 0)),
		transferOrder(enums.OrderStatusCompleted, 1000, at(2026, 4, 30, 23, 30), nil),
		transferOrder(enums.OrderStatusCompleted, 200, at(2025, 6, 15, 12, 0), nil),
		transferOrder(enums.OrderStatusCompleted, 400, at(2025, 5, 20, 12, 0), nil),
		updatedOnly,
		transferOrder(enums.OrderStatusShipped, 9999, nil, nil),
		{PaymentMethod: enums.PaymentMethodCOD, Status: enums.OrderStatusCODDelivered, TotalCents: 50000, CODDeliveredAt: at(2026, 5, 13, 9, 0)},
		{PaymentMethod: enums.PaymentMethodCOD, Status: enums.OrderStatusCODShipped, TotalCents: 70000},
	}
}

func TestAggregateBuckets(t *testing.T) {
	now := *at(2026, 5, 13, 15, 0)

	stats := Aggregate(sampleOrders(), now, wib)

	assert.Equal(t, int64(6950), stats.TotalAdminRevenueCents)
	assert.Equal(t, 7, stats.CompletedTransactions)
	assert.Equal(t, int64(993), stats.AverageAdminFeePerTransaction)
	assert.Equal(t, int64(5350), stats.MonthAdminRevenueCents)
	assert.Equal(t, int64(4600), stats.WeekAdminRevenueCents)
	assert.Equal(t, int64(1600), stats.DayAdminRevenueCents)
	assert.Equal(t, int64(750000), stats.GrossTransactionValueCents)
	assert.Equal(t, "WIB", stats.Timezone)

	require.Len(t, stats.Monthly, 12)
	assert.Equal(t, "2025-06", stats.Monthly[0].Month)
	assert.Equal(t, "2026-05", stats.Monthly[11].Month)
	byMonth := map[string]MonthBucket{}
	for _, bucket := range stats.Monthly {
		byMonth[bucket.Month] = bucket
	}
	assert.Equal(t, MonthBucket{Month: "2025-06", AdminRevenueCents: 200, Transactions: 1}, byMonth["2025-06"])
	assert.Equal(t, MonthBucket{Month: "2026-04", AdminRevenueCents: 1000, Transactions: 1}, byMonth["2026-04"])
	assert.Equal(t, MonthBucket{Month: "2026-05", AdminRevenueCents: 5350, Transactions: 4}, byMonth["2026-05"])
	assert.Equal(t, MonthBucket{Month: "2025-12"}, byMonth["2025-12"])
}

func TestAggregateWeekStartsSundayInConfiguredZone(t *testing.T) {
	sundayLocal := transferOrder(enums.OrderStatusCompleted, 3000, at(2026, 5, 10, 0, 30), nil)
	now := *at(2026, 5, 13, 15, 0)

	assert.Equal(t, int64(3000), Aggregate([]models.Order{sundayLocal}, now, wib).WeekAdminRevenueCents)
	assert.Zero(t, Aggregate([]models.Order{sundayLocal}, now, time.UTC).WeekAdminRevenueCents)
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), nil)

	assert.Zero(t, stats.AverageAdminFeePerTransaction)
	assert.Zero(t, stats.CompletedTransactions)
	assert.Equal(t, "UTC", stats.Timezone)
	require.Len(t, stats.Monthly, 12)
	assert.Equal(t, "2025-02", stats.Monthly[0].Month)
	assert.Equal(t, "2026-01", stats.Monthly[11].Month)
}

func TestRevenueTimeFallbacks(t *testing.T) {
	completed, delivered := at(2026, 5, 3, 0, 0), at(2026, 5, 2, 0, 0)
	updated := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, *completed, RevenueTime(&models.Order{CompletedAt: completed, DeliveredAt: delivered, UpdatedAt: updated}))
	assert.Equal(t, *delivered, RevenueTime(&models.Order{DeliveredAt: delivered, UpdatedAt: updated}))
	assert.Equal(t, updated, RevenueTime(&models.Order{UpdatedAt: updated}))
}

type stubScanner struct {
	statuses []enums.OrderStatus
	rows     []models.Order
	err      error
}

func (s *stubScanner) ListForRevenue(ctx context.Context, statuses []enums.OrderStatus) ([]models.Order, error) {
	s.statuses = statuses
	return s.rows, s.err
}

func TestServiceStats(t *testing.T) {
	scanner := &stubScanner{rows: sampleOrders()}
	registry := prometheus.NewRegistry()
	now := func() time.Time { return *at(2026, 5, 13, 15, 0) }

	svc, err := NewService(scanner, wib, metrics.NewOrderMetrics(registry), nil, now)
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScannedStatuses, scanner.statuses)
	assert.Equal(t, int64(6950), stats.TotalAdminRevenueCents)

	families, err := registry.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, family := range families {
		if family.GetName() == "revenue_scan_duration_seconds" {
			samples = family.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(1), samples)
}

func TestServiceStatsWrapsScanErrors(t *testing.T) {
	boom := errors.New("connection reset")
	svc, err := NewService(&stubScanner{err: boom}, nil, nil, nil, nil)
	require.NoError(t, err)

	_, err = svc.Stats(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	assert.True(t, errors.Is(err, boom))
}

func TestNewServiceRequiresScanner(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
