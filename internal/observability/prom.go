package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kidshub"

var (
	httpBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	dbBuckets   = []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5}
	jobBuckets  = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}
)

// Prom holds every collector the API and the worker export. Recording
// helpers are safe on a nil *Prom so tests can leave it out.
type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	AuthGrants *prometheus.CounterVec

	// Marketplace
	Enrollments   *prometheus.CounterVec
	Notifications *prometheus.CounterVec

	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	JobDuration  *prometheus.HistogramVec
	JobResults   *prometheus.CounterVec
	JobsInFlight prometheus.Gauge
}

func counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal:    counter("", "http_requests_total", "Total HTTP requests processed.", "method", "route", "table", "status"),
		RequestsDuration: histogram("", "http_request_duration_seconds", "HTTP request latency.", httpBuckets, "method", "route", "table", "status"),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}, []string{"method", "route"}),

		// result=ok|denied|error
		AuthGrants: counter("auth", "grants_total", "Token grants by grant type and result.", "grant_type", "result"),

		// outcome=created|reopened|already_enrolled|activity_full|error
		Enrollments: counter("enrollments", "requests_total", "Enrollment attempts by outcome.", "outcome"),
		// result=sent|skipped|failed
		Notifications: counter("notifications", "total", "Guardian notices by kind and result.", "kind", "result"),

		DbQueryDuration: histogram("db", "query_duration_seconds", "DB operation latency by logical op.", dbBuckets, "op", "status"),
		DbErrorsTotal:   counter("db", "errors_total", "DB errors by logical op and class.", "op", "class"),

		JobDuration: histogram("jobs", "duration_seconds", "Job execution duration by type and result.", jobBuckets, "job_type", "result"),
		// result=done|retry|failed
		JobResults: counter("jobs", "results_total", "Job outcomes by type and result.", "job_type", "result"),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Jobs executing in this process.",
		}),
	}

	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.AuthGrants, p.Enrollments, p.Notifications,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.JobDuration, p.JobResults, p.JobsInFlight,
	)
	return p
}

// GrantResult records the outcome of a token grant.
func (p *Prom) GrantResult(grantType, result string) {
	if p == nil {
		return
	}
	p.AuthGrants.WithLabelValues(grantType, result).Inc()
}

func (p *Prom) EnrollmentOutcome(outcome string) {
	if p == nil {
		return
	}
	p.Enrollments.WithLabelValues(outcome).Inc()
}

func (p *Prom) NotificationResult(kind, result string) {
	if p == nil {
		return
	}
	p.Notifications.WithLabelValues(kind, result).Inc()
}

// GinHandleMiddleware labels requests by route template. Data API calls also
// carry the table, which is bounded by the known table set.
func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		table := ctx.Param("table")

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()

		ctx.Next()

		if ctx.Writer.Status() == 404 {
			table = ""
		}
		status := strconv.Itoa(ctx.Writer.Status())
		p.RequestsTotal.WithLabelValues(method, route, table, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, table, status).Observe(time.Since(start).Seconds())
	}
}
