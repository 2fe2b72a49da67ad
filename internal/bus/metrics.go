package bus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// busMetrics holds the Prometheus instruments for the message bus.
type busMetrics struct {
	sent             *prometheus.CounterVec
	delivered        prometheus.Counter
	subscriberErrors prometheus.Counter
	evictions        prometheus.Counter
	subscriptions    prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *busMetrics
)

// defaultMetrics returns the process-wide bus metrics registered on the
// default registry. Registration happens once; every bus instance shares the
// same instruments.
func defaultMetrics() *busMetrics {
	metricsOnce.Do(func() {
		metricsInstance = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

// MustNewMetrics creates and registers bus metrics on reg. Panics on
// registration conflicts, so call it at most once per registry.
func MustNewMetrics(reg prometheus.Registerer) *busMetrics {
	m := &busMetrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "squadron",
			Subsystem: "bus",
			Name:      "messages_sent_total",
			Help:      "Messages routed through the bus, by kind.",
		}, []string{"kind"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "squadron",
			Subsystem: "bus",
			Name:      "deliveries_total",
			Help:      "Subscriber callback invocations that succeeded.",
		}),
		subscriberErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "squadron",
			Subsystem: "bus",
			Name:      "subscriber_errors_total",
			Help:      "Subscriber callbacks that returned an error or panicked.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "squadron",
			Subsystem: "bus",
			Name:      "queue_evictions_total",
			Help:      "Messages evicted from capped recipient queues.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "squadron",
			Subsystem: "bus",
			Name:      "subscriptions",
			Help:      "Currently active subscriptions.",
		}),
	}
	reg.MustRegister(m.sent, m.delivered, m.subscriberErrors, m.evictions, m.subscriptions)
	return m
}

func (m *busMetrics) observeSend(kind string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(kind).Inc()
}

func (m *busMetrics) observeDelivery() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *busMetrics) observeSubscriberError() {
	if m == nil {
		return
	}
	m.subscriberErrors.Inc()
}

func (m *busMetrics) observeEviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *busMetrics) setSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}
