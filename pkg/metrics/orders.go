package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records order placement and admin status transition outcomes.
type OrderMetrics struct {
	placements  *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewOrderMetrics registers the order flow metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_placements_total",
		Help: "Order placement attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Admin order status changes by source status, target status and outcome.",
	}, []string{"from", "to", "outcome"})
	reg.MustRegister(placements, transitions)
	return &OrderMetrics{
		placements:  placements,
		transitions: transitions,
	}
}

// IncPlacement counts a placement outcome (success, failed, rejected, empty_cart).
func (o *OrderMetrics) IncPlacement(outcome string) {
	if o == nil || o.placements == nil {
		return
	}
	o.placements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition counts a status change outcome (applied, noop, disallowed, stale, failed).
func (o *OrderMetrics) IncTransition(from, to, outcome string) {
	if o == nil || o.transitions == nil {
		return
	}
	o.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(outcome)).Inc()
}
