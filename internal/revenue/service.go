package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
)

// Service computes revenue reports on demand. Stats takes no range argument: every
// bucket (total, month, week, day, trailing months) comes back from one scan and
// callers pick the one they need.
type Service interface {
	Stats(ctx context.Context) (*Stats, error)
}

type orderScanner interface {
	ListForRevenue(ctx context.Context, statuses []enums.OrderStatus) ([]models.Order, error)
}

type service struct {
	orders  orderScanner
	loc     *time.Location
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the aggregator. Buckets are cut in loc; nil means UTC.
func NewService(orders orderScanner, loc *time.Location, m *metrics.OrderMetrics, logg *logger.Logger, now func() time.Time) (Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order scanner required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if now == nil {
		now = time.Now
	}
	return &service{orders: orders, loc: loc, metrics: m, logg: logg, now: now}, nil
}

// Stats scans every revenue-bearing order. Nothing is cached between calls.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	started := time.Now()
	rows, err := s.orders.ListForRevenue(ctx, ScannedStatuses)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan revenue orders")
	}
	stats := Aggregate(rows, s.now(), s.loc)
	elapsed := time.Since(started)
	s.metrics.ObserveRevenueScan(elapsed)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"orders":      len(rows),
		"duration_ms": elapsed.Milliseconds(),
	})
	s.logg.Debug(logCtx, "revenue scan complete")
	return &stats, nil
}
