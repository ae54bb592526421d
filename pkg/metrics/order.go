package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records order lifecycle, settlement and revenue scan activity.
// A nil *OrderMetrics is valid and records nothing.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	settlements *prometheus.CounterVec
	revenueScan prometheus.Histogram
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Accepted order status transitions.",
	}, []string{"event", "to"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Order events refused by the status machine.",
	}, []string{"event"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_write_conflicts_total",
		Help: "Order writes that lost an optimistic concurrency check.",
	}, []string{"operation"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seller_settlements_total",
		Help: "Multi-seller settlement commits by outcome.",
	}, []string{"result"})
	revenueScan := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "revenue_scan_duration_seconds",
		Help:    "Duration of revenue aggregation scans in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(transitions, rejected, conflicts, settlements, revenueScan)
	return &OrderMetrics{
		transitions: transitions,
		rejected:    rejected,
		conflicts:   conflicts,
		settlements: settlements,
		revenueScan: revenueScan,
	}
}

// IncTransition counts an accepted event landing on the given status.
func (m *OrderMetrics) IncTransition(event, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(event), normalizeLabel(to)).Inc()
}

// IncRejected counts an event the status machine refused.
func (m *OrderMetrics) IncRejected(event string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncConflict counts a lost optimistic concurrency check.
func (m *OrderMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncSettlement counts a settlement attempt by result, e.g. committed or partial.
func (m *OrderMetrics) IncSettlement(result string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveRevenueScan records how long a revenue aggregation took.
func (m *OrderMetrics) ObserveRevenueScan(d time.Duration) {
	if m == nil || m.revenueScan == nil {
		return
	}
	m.revenueScan.Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
