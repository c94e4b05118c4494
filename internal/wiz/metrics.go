package wiz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-method counters for a Client. A nil *Metrics is a no-op.
type Metrics struct {
	datagramsSent *prometheus.CounterVec
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics creates the client metrics and registers them on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		datagramsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizlight",
			Name:      "datagrams_sent_total",
			Help:      "UDP datagrams transmitted to bulbs, including retransmissions.",
		}, []string{"method"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizlight",
			Name:      "requests_total",
			Help:      "Completed bulb calls by outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wizlight",
			Name:      "request_duration_seconds",
			Help:      "Time from first transmission to the end of a bulb call.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 13, 30, 60},
		}, []string{"method"}),
	}
	registry.MustRegister(m.datagramsSent, m.requests, m.duration)
	return m
}

func (m *Metrics) datagramSent(method Method) {
	if m == nil {
		return
	}
	m.datagramsSent.WithLabelValues(string(method)).Inc()
}

func (m *Metrics) observe(method Method, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(method), outcomeLabel(err)).Inc()
	m.duration.WithLabelValues(string(method)).Observe(elapsed.Seconds())
}
