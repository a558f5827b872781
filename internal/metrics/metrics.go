// Package metrics exposes prometheus collectors for sessions and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SAP-F-2025/assessment-session-engine/internal/session"
)

const namespace = "assessment_session"

type Metrics struct {
	gatherer prometheus.Gatherer

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SessionEvents  *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Submissions    *prometheus.CounterVec
	ScorePercent   prometheus.Histogram
}

// New creates the collectors and registers them with reg. Passing nil
// uses a fresh registry, which keeps tests independent of each other.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		SessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Session lifecycle events by kind",
			},
			[]string{"kind"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Sessions currently held in memory",
		}),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Finished submissions by outcome",
			},
			[]string{"outcome", "auto_submit"},
		),
		ScorePercent: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_percentage",
			Help:      "Percentage scored by graded sessions",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
	}

	reg.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.SessionEvents,
		m.ActiveSessions,
		m.Submissions,
		m.ScorePercent,
	)
	return m
}

// Observe records a session lifecycle event.
func (m *Metrics) Observe(e session.Event) {
	m.SessionEvents.WithLabelValues(string(e.Kind)).Inc()

	auto := strconv.FormatBool(e.AutoSubmit)
	switch e.Kind {
	case session.EventCompleted:
		outcome := "failed"
		if e.Result != nil {
			if e.Result.Passed {
				outcome = "passed"
			}
			m.ScorePercent.Observe(float64(e.Result.Percentage))
		}
		m.Submissions.WithLabelValues(outcome, auto).Inc()
	case session.EventSubmissionFailed:
		m.Submissions.WithLabelValues("error", auto).Inc()
	}
}

func (m *Metrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	m.ActiveSessions.Dec()
}

func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		duration := time.Since(start).Seconds()

		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func (m *Metrics) PrometheusHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
