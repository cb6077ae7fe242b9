// Package metrics exposes Prometheus metrics of the survey service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clustereval"

// Submission outcomes.
const (
	OutcomeDelivered        = "delivered"
	OutcomeAlreadySubmitted = "already_submitted"
	OutcomeIncomplete       = "incomplete"
	OutcomeTransportError   = "transport_error"
	OutcomeError            = "error"
)

// Results of posts to the built-in forms backend.
const (
	FormStored    = "stored"
	FormDuplicate = "duplicate"
	FormInvalid   = "invalid"
)

// Metrics owns its own registry so that tests and multiple servers never collide. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	submissions         *prometheus.CounterVec
	submissionDuration  prometheus.Histogram
	navigationRejected  *prometheus.CounterVec
	answersSaved        *prometheus.CounterVec
	formsReceived       *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults
	)
	auto := promauto.With(registry)
	return &Metrics{
		registry: registry,
		submissions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submit attempts by outcome.",
		}, []string{"outcome"}),
		submissionDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Duration of submit attempts including delivery to the forms backend.",
			Buckets:   prometheus.DefBuckets,
		}),
		navigationRejected: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_rejected_total",
			Help:      "Navigation attempts rejected by reason.",
		}, []string{"reason"}),
		answersSaved: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_saved_total",
			Help:      "Answer updates by task kind.",
		}, []string{"kind"}),
		formsReceived: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forms_received_total",
			Help:      "Posts received by the built-in forms backend by result.",
		}, []string{"result"}),
		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route, method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status_code"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}) //nolint:exhaustruct // defaults
}

func (m *Metrics) Submission(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	m.submissionDuration.Observe(duration.Seconds())
}

func (m *Metrics) NavigationRejected(reason string) {
	if m == nil {
		return
	}
	m.navigationRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) AnswerSaved(kind string) {
	if m == nil {
		return
	}
	m.answersSaved.WithLabelValues(kind).Inc()
}

func (m *Metrics) FormReceived(result string) {
	if m == nil {
		return
	}
	m.formsReceived.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(duration.Seconds())
}
