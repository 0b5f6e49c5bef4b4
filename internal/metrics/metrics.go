package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"muenzbox/internal/config"
)

type Provider interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	SessionStarted(class string)
	SessionEnded(class, status string)
	CoinsRefilled(class string, coins int)
	DeviceCall(method, action string, ok bool)
	ObserveTick(duration time.Duration, expired int)
}

type PrometheusProvider struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionsStarted *prometheus.CounterVec
	sessionsEnded   *prometheus.CounterVec
	coinsRefilled   *prometheus.CounterVec
	deviceCalls     *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	expiredSessions prometheus.Counter
}

func (m *PrometheusProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *PrometheusProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *PrometheusProvider) SessionStarted(class string) {
	m.sessionsStarted.WithLabelValues(class).Inc()
}

func (m *PrometheusProvider) SessionEnded(class, status string) {
	m.sessionsEnded.WithLabelValues(class, status).Inc()
}

func (m *PrometheusProvider) CoinsRefilled(class string, coins int) {
	m.coinsRefilled.WithLabelValues(class).Add(float64(coins))
}

func (m *PrometheusProvider) DeviceCall(method, action string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.deviceCalls.WithLabelValues(method, action, result).Inc()
}

func (m *PrometheusProvider) ObserveTick(duration time.Duration, expired int) {
	m.tickDuration.Observe(duration.Seconds())
	m.expiredSessions.Add(float64(expired))
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// New registers the collectors on the default registerer. A disabled
// configuration yields a provider that records nothing.
func New(conf config.MetricsConfig) Provider {
	if !conf.Enabled {
		return &noopMetrics{}
	}

	return &PrometheusProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muenzbox_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "muenzbox_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		sessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muenzbox_sessions_started_total",
			Help: "Sessions started per device class",
		}, []string{"class"}),

		sessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muenzbox_sessions_ended_total",
			Help: "Sessions ended per device class and final status",
		}, []string{"class", "status"}),

		coinsRefilled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muenzbox_coins_refilled_total",
			Help: "Coins credited by the weekly refill",
		}, []string{"class"}),

		deviceCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muenzbox_device_calls_total",
			Help: "Hardware calls per control method, action and result",
		}, []string{"method", "action", "result"}),

		tickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "muenzbox_scheduler_tick_duration_seconds",
			Help:    "Duration of scheduler ticks in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		expiredSessions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "muenzbox_sessions_expired_total",
			Help: "Sessions completed by the expiry sweep",
		}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) SessionStarted(_ string)                          {}
func (n *noopMetrics) SessionEnded(_, _ string)                         {}
func (n *noopMetrics) CoinsRefilled(_ string, _ int)                    {}
func (n *noopMetrics) DeviceCall(_, _ string, _ bool)                   {}
func (n *noopMetrics) ObserveTick(_ time.Duration, _ int)               {}

// Noop returns a provider that records nothing.
func Noop() Provider {
	return &noopMetrics{}
}
