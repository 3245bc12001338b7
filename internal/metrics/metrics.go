// Package metrics holds the Prometheus collectors of the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so that tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	recognitions    *prometheus.CounterVec
	matcherLatency  prometheus.Histogram
	odSubmissions   *prometheus.CounterVec
	odDecisions     *prometheus.CounterVec
}

// New registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	recognitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_recognitions_total",
		Help: "Recognition attempts by outcome",
	}, []string{"outcome"})

	matcherLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "face_matcher_duration_seconds",
		Help:    "Latency of calls to the face matcher",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	odSubmissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "od_submissions_total",
		Help: "OD requests created, by OCR verification result",
	}, []string{"verified"})

	odDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "od_decisions_total",
		Help: "OD decision attempts by outcome",
	}, []string{"outcome"})

	registry.MustRegister(
		requestDuration, recognitions, matcherLatency, odSubmissions, odDecisions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		recognitions:    recognitions,
		matcherLatency:  matcherLatency,
		odSubmissions:   odSubmissions,
		odDecisions:     odDecisions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// GinMiddleware observes request durations by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestDuration.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Recognition counts one gateway outcome: marked, already_marked, rejected or error.
func (m *Metrics) Recognition(outcome string) {
	if m == nil {
		return
	}
	m.recognitions.WithLabelValues(outcome).Inc()
}

// MatcherLatency records one matcher round trip.
func (m *Metrics) MatcherLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.matcherLatency.Observe(d.Seconds())
}

// ODSubmitted counts one created OD request.
func (m *Metrics) ODSubmitted(verified bool) {
	if m == nil {
		return
	}
	m.odSubmissions.WithLabelValues(strconv.FormatBool(verified)).Inc()
}

// ODDecision counts one decide attempt: approved, rejected, already_decided or not_found.
func (m *Metrics) ODDecision(outcome string) {
	if m == nil {
		return
	}
	m.odDecisions.WithLabelValues(outcome).Inc()
}
