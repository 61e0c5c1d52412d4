package poolregistry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	poolsCreated     prometheus.Counter
	pools            prometheus.Gauge
	parameterUpdates *prometheus.CounterVec
	rejected         *prometheus.CounterVec
}

// NewMetrics creates and registers the registry metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		poolsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amm",
			Subsystem: "registry",
			Name:      "pools_created_total",
			Help:      "Pools created through the registry.",
		}),
		pools: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "amm",
			Subsystem: "registry",
			Name:      "pools",
			Help:      "Number of registered pools.",
		}),
		parameterUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "registry",
				Name:      "parameter_updates_total",
				Help:      "Accepted fee parameter updates by parameter.",
			},
			[]string{"parameter"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "registry",
				Name:      "rejected_total",
				Help:      "Rejected registry calls by operation.",
			},
			[]string{"op"},
		),
	}
}
