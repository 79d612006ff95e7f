// Package metrics exposes note service counters in Prometheus format.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/kuitang/quicknotes/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quicknotes"

// Rejection reasons for CreateRejected.
const (
	ReasonRateLimited = "rate_limited"
	ReasonInvalid     = "invalid"
)

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	created   prometheus.Counter
	updated   *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	searches  prometheus.Counter
	toolCalls *prometheus.CounterVec
	requests  *prometheus.CounterVec
}

// New registers the service collectors plus Go runtime and process
// collectors. notesCount backs the quicknotes_notes gauge.
func New(notesCount func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_created_total",
			Help:      "Notes successfully created.",
		}),
		updated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_updated_total",
			Help:      "Successful note updates by result.",
		}, []string{"result"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "create_rejected_total",
			Help:      "Rejected note creations by reason.",
		}, []string{"reason"}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search requests served.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mcp_tool_calls_total",
			Help:      "MCP tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		m.created, m.updated, m.rejected, m.searches, m.toolCalls, m.requests,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notes",
			Help:      "Notes currently stored.",
		}, func() float64 {
			if notesCount == nil {
				return 0
			}
			return float64(notesCount())
		}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) NoteCreated() {
	if m != nil {
		m.created.Inc()
	}
}

// NoteUpdated counts a successful update; changed=false is the
// "No changes detected" outcome.
func (m *Metrics) NoteUpdated(changed bool) {
	if m == nil {
		return
	}
	result := "unchanged"
	if changed {
		result = "changed"
	}
	m.updated.WithLabelValues(result).Inc()
}

func (m *Metrics) CreateRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Searched() {
	if m != nil {
		m.searches.Inc()
	}
}

// ToolCalled counts an MCP tool invocation; outcome is "ok" or "error".
func (m *Metrics) ToolCalled(tool string, isError bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLog{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Middleware counts every request by method and final status code.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped, recorder := obs.NewResponseRecorder(w)
		next.ServeHTTP(wrapped, r)
		m.requests.WithLabelValues(r.Method, strconv.Itoa(recorder.StatusCode())).Inc()
	})
}

type promErrorLog struct{}

func (promErrorLog) Println(v ...any) {
	obs.Pkg("metrics").Error("metrics_gather_failed", "error", v)
}
