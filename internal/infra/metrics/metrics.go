package metrics

import (
	"net/http"
	"strconv"
	"time"

	"lifeguard_alerts/internal/app"
	"lifeguard_alerts/internal/domain/notify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	alertsTotal       *prometheus.CounterVec
	channelSendsTotal *prometheus.CounterVec
	sendAttempts      *prometheus.HistogramVec
	dispatchDuration  *prometheus.HistogramVec
	testAlertsTotal   *prometheus.CounterVec
	rateLimitedTotal  *prometheus.CounterVec
	sweptResponses    prometheus.Counter
}

// NewMetrics registers all collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		alertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeguard_alerts_triggered_total",
				Help: "Emergency alert triggers by outcome",
			},
			[]string{"outcome"},
		),
		channelSendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeguard_channel_sends_total",
				Help: "Per-recipient channel deliveries after retries",
			},
			[]string{"channel", "result"},
		),
		sendAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lifeguard_channel_send_attempts",
				Help:    "Gateway attempts needed per channel delivery",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"channel"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lifeguard_dispatch_duration_seconds",
				Help:    "Time from alert creation until the last send landed",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"partial"},
		),
		testAlertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeguard_test_alerts_total",
				Help: "Test notifications by channel and result",
			},
			[]string{"channel", "result"},
		),
		rateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeguard_rate_limited_requests_total",
				Help: "Requests denied by the HTTP rate limiter",
			},
			[]string{"route"},
		),
		sweptResponses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lifeguard_responses_timed_out_total",
				Help: "Delivery records marked TimedOut by the sweep",
			},
		),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) AlertTriggered(outcome app.Outcome) {
	m.alertsTotal.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) ChannelSend(ch notify.Channel, ok bool, attempts int) {
	m.channelSendsTotal.WithLabelValues(string(ch), result(ok)).Inc()
	m.sendAttempts.WithLabelValues(string(ch)).Observe(float64(attempts))
}

func (m *Metrics) DispatchCompleted(d time.Duration, partial bool) {
	m.dispatchDuration.WithLabelValues(strconv.FormatBool(partial)).Observe(d.Seconds())
}

func (m *Metrics) TestAlertSent(ch notify.Channel, ok bool) {
	m.testAlertsTotal.WithLabelValues(string(ch), result(ok)).Inc()
}

// RateLimited counts a request rejected by the HTTP limiter.
func (m *Metrics) RateLimited(route string) {
	m.rateLimitedTotal.WithLabelValues(route).Inc()
}

// ResponsesTimedOut adds the records flipped by one sweep.
func (m *Metrics) ResponsesTimedOut(n int64) {
	m.sweptResponses.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ app.Metrics = (*Metrics)(nil)
