package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	duration       prometheus.Histogram
	resolved       prometheus.Counter
	unresolved     prometheus.Counter
	cycleBreaks    prometheus.Counter
	dynamicImports *prometheus.CounterVec
}

// newMetrics creates the resolver metrics and registers them with reg.
// A nil reg yields unregistered collectors.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bundlestate",
			Name:      "resolve_duration_seconds",
			Help:      "Time taken by one resolve round.",
			Buckets:   prometheus.DefBuckets,
		}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bundlestate",
			Name:      "bundles_resolved_total",
			Help:      "Bundles resolved by resolve rounds.",
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bundlestate",
			Name:      "bundles_unresolved_total",
			Help:      "Bundles left unresolved by resolve rounds.",
		}),
		cycleBreaks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bundlestate",
			Name:      "cycle_breaks_total",
			Help:      "Element sets disabled to break dependency cycles.",
		}),
		dynamicImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bundlestate",
			Name:      "dynamic_imports_total",
			Help:      "Dynamic import lookups by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.duration, m.resolved, m.unresolved, m.cycleBreaks, m.dynamicImports} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *metrics) observeRound(start time.Time, resolved, unresolved, cycleBreaks int) {
	m.duration.Observe(time.Since(start).Seconds())
	m.resolved.Add(float64(resolved))
	m.unresolved.Add(float64(unresolved))
	m.cycleBreaks.Add(float64(cycleBreaks))
}

func (m *metrics) observeDynamic(w bool) {
	result := "miss"
	if w {
		result = "hit"
	}
	m.dynamicImports.WithLabelValues(result).Inc()
}
