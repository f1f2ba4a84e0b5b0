// Package metrics holds the Prometheus collectors for intake.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of intake collectors registered against one registry.
type Metrics struct {
	GatewayCalls           *prometheus.CounterVec
	GatewayCallDuration    *prometheus.HistogramVec
	GatewayTransportErrors *prometheus.CounterVec
	GatewayDomainErrors    *prometheus.CounterVec
	ValidationFailures     *prometheus.CounterVec
	SessionsActive         prometheus.Gauge
	SessionsCompleted      prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GatewayCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_gateway_calls_total",
			Help: "Dialogue service calls by endpoint",
		}, []string{"endpoint"}),

		GatewayCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_gateway_call_duration_seconds",
			Help:    "Dialogue service call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}, []string{"endpoint"}),

		GatewayTransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_gateway_transport_errors_total",
			Help: "Calls that failed before a response body was obtained",
		}, []string{"endpoint"}),

		GatewayDomainErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_gateway_domain_errors_total",
			Help: "Responses carrying an error field",
		}, []string{"endpoint"}),

		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_validation_failures_total",
			Help: "Answers rejected locally by question type",
		}, []string{"type"}),

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "intake_sessions_active",
			Help: "Sessions started and not yet completed",
		}),

		SessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_completed_total",
			Help: "Sessions that received a summary",
		}),
	}
}

var (
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// Default returns the collectors registered with the global Prometheus
// registry, creating them on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultSet = New(prometheus.DefaultRegisterer)
	})
	return defaultSet
}
