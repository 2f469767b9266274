// Package telemetry records backend calls, spoken utterances and HTTP traffic
// as structured logs and Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fridgechef"

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Recorder centralises telemetry for the app. Each Recorder owns its own
// registry so tests do not share global state.
type Recorder struct {
	logger   *slog.Logger
	registry *prometheus.Registry

	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	utterances      *prometheus.CounterVec
	utteranceTime   prometheus.Histogram
	httpRequests    *prometheus.CounterVec
}

// NewRecorder constructs a recorder using the provided slog.Logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		logger:   logger.With("component", "telemetry"),
		registry: reg,
		backendCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Recipe backend calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		backendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Recipe backend call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}, []string{"endpoint"}),
		utterances: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Spoken recipe steps by outcome.",
		}, []string{"outcome"}),
		utteranceTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_duration_seconds",
			Help:      "Time from submitting a step to its completion.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Web UI requests by route and status code.",
		}, []string{"method", "route", "code"}),
	}
}

// Logger returns the underlying slog.Logger for direct use.
func (r *Recorder) Logger() *slog.Logger {
	return r.logger
}

// Registry exposes the metrics registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveCall records one recipe backend call.
func (r *Recorder) ObserveCall(endpoint string, d time.Duration, err error) {
	outcome := outcomeOf(err)
	r.backendCalls.WithLabelValues(endpoint, outcome).Inc()
	r.backendDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	if err != nil && outcome == OutcomeError {
		r.logger.Warn("backend call failed", "endpoint", endpoint, "duration", d, "error", err)
		return
	}
	r.logger.Debug("backend call", "endpoint", endpoint, "duration", d, "outcome", outcome)
}

// ObserveUtterance records one spoken step.
func (r *Recorder) ObserveUtterance(d time.Duration, err error) {
	outcome := outcomeOf(err)
	r.utterances.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		r.utteranceTime.Observe(d.Seconds())
	}
}

// ObserveHTTP records one web UI request.
func (r *Recorder) ObserveHTTP(method, route string, status int) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}
