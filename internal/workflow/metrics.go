package workflow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/parkerduff/squadron/pkg/models"
)

// Metrics exposes Prometheus collectors reporting workflow activity.
type Metrics struct {
	transitions *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when multiple engines are constructed
// (e.g. in unit tests).
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Registration errors panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "squadron",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total number of workflow transitions executed.",
		},
		[]string{"from", "to"},
	)

	reg.MustRegister(transitions)
	return &Metrics{transitions: transitions}
}

func (m *Metrics) observeTransition(from, to models.WorkflowState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}
