// Package metrics exposes Prometheus counters for the generation pipelines
// and the HTTP surface. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	lullabies     *prometheus.CounterVec
	voiceProfiles *prometheus.CounterVec
	pollChecks    *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests so runs do not collide.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		lullabies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dodo_lullaby_generations_total",
			Help: "Lullaby pipelines by terminal outcome and audio source.",
		}, []string{"outcome", "source"}),
		voiceProfiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dodo_voice_profiles_total",
			Help: "Voice profile pipelines by result.",
		}, []string{"result"}),
		pollChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dodo_poll_checks_total",
			Help: "Provider status checks by observed result.",
		}, []string{"result"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dodo_fallback_total",
			Help: "Fallback audio uses by reason.",
		}, []string{"reason"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dodo_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dodo_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NewDefault builds a registry with Go runtime and process collectors.
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return New(reg)
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LullabyFinished(outcome, source string) {
	if m == nil {
		return
	}
	m.lullabies.WithLabelValues(outcome, source).Inc()
}

func (m *Metrics) VoiceProfileFinished(result string) {
	if m == nil {
		return
	}
	m.voiceProfiles.WithLabelValues(result).Inc()
}

func (m *Metrics) PollCheck(result string) {
	if m == nil {
		return
	}
	m.pollChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
