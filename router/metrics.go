package router

import (
	"time"

	"github.com/defistate/defistate-amm-core/journal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the router's prometheus collectors. Successful calls are
// counted when the outermost journal frame commits.
type Metrics struct {
	swaps            *prometheus.CounterVec
	swapDuration     *prometheus.HistogramVec
	forwardingFees   *prometheus.CounterVec
	parameterUpdates *prometheus.CounterVec
	rejected         *prometheus.CounterVec
}

// NewMetrics creates and registers the router metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		swaps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "swaps_total",
				Help:      "Routed swaps by path and result. Successes undone by an enclosing operation count as reverted.",
			},
			[]string{"path", "result"},
		),
		swapDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "swap_duration_seconds",
				Help:      "Time spent routing a swap.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
			[]string{"path"},
		),
		forwardingFees: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "forwarding_fees_total",
				Help:      "Forwarding fees skimmed, in base units of the input asset.",
			},
			[]string{"asset"},
		),
		parameterUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "parameter_updates_total",
				Help:      "Committed router parameter changes.",
			},
			[]string{"parameter"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "rejected_total",
				Help:      "Rejected router administration calls by operation.",
			},
			[]string{"op"},
		),
	}
}

func (m *Metrics) observe(j *journal.Journal, path string, start time.Time, err error) {
	m.swapDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		m.swaps.WithLabelValues(path, "error").Inc()
		return
	}
	if f := j.Current(); f != nil {
		f.OnRollback(m.swaps.WithLabelValues(path, "reverted").Inc)
	}
	j.AfterCommit(m.swaps.WithLabelValues(path, "ok").Inc)
}
