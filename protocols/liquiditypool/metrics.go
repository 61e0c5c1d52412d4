package liquiditypool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are shared by every pool created against the same registerer.
type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	protocolFees *prometheus.CounterVec
}

// NewMetrics creates and registers the pool metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "pool",
				Name:      "operations_total",
				Help:      "Pool operations by kind and result. Successes undone by an enclosing operation count as reverted.",
			},
			[]string{"op", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "amm",
				Subsystem: "pool",
				Name:      "operation_duration_seconds",
				Help:      "Time spent executing a pool operation.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
			[]string{"op"},
		),
		protocolFees: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "pool",
				Name:      "protocol_fees_total",
				Help:      "Protocol fees paid out during swaps, in base units of the input asset.",
			},
			[]string{"asset"},
		),
	}
}
