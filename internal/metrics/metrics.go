package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Outreach
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	// Domain counters
	SegmentWritesTotal      *prometheus.CounterVec
	TokenVerificationsTotal *prometheus.CounterVec
	HistoryExportsTotal     *prometheus.CounterVec
	MailChecksTotal         *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge
	Accounts         prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"error_type"},
		),

		SegmentWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_segment_writes_total",
				Help: "Total number of segment writes by operation and result",
			},
			[]string{"op", "result"},
		),
		TokenVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_token_verifications_total",
				Help: "Total number of identity token verifications",
			},
			[]string{"result"},
		),
		HistoryExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_history_exports_total",
				Help: "Total number of history exports by format",
			},
			[]string{"format"},
		),
		MailChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_mail_checks_total",
				Help: "Total number of mail relay credential checks",
			},
			[]string{"result"},
		),

		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_ratelimit_exceeded_total",
				Help: "Total number of rate limit exceeded events",
			},
			[]string{"level"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_storage_used_bytes",
				Help: "Document store file size in bytes",
			},
		),
		Accounts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_accounts",
				Help: "Number of user namespaces in the document store",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.SegmentWritesTotal,
		m.TokenVerificationsTotal,
		m.HistoryExportsTotal,
		m.MailChecksTotal,
		m.RateLimitExceededTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
		m.Accounts,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// Result labels
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Result maps an error to a result label
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Persisted counter families
const (
	FamilyHTTPRequests       = "http_requests"
	FamilyHTTPErrors         = "http_errors"
	FamilySegmentWrites      = "segment_writes"
	FamilyTokenVerifications = "token_verifications"
	FamilyHistoryExports     = "history_exports"
	FamilyMailChecks         = "mail_checks"
	FamilyRateLimitExceeded  = "ratelimit_exceeded"
)

func (m *Metrics) counter(family string) *prometheus.CounterVec {
	switch family {
	case FamilyHTTPRequests:
		return m.HTTPRequestsTotal
	case FamilyHTTPErrors:
		return m.HTTPErrorsTotal
	case FamilySegmentWrites:
		return m.SegmentWritesTotal
	case FamilyTokenVerifications:
		return m.TokenVerificationsTotal
	case FamilyHistoryExports:
		return m.HistoryExportsTotal
	case FamilyMailChecks:
		return m.MailChecksTotal
	case FamilyRateLimitExceeded:
		return m.RateLimitExceededTotal
	}
	return nil
}

// count increments a counter family, through the collector when one is
// installed so the value is persisted
func count(family string, labels ...string) {
	if c := globalCollector(); c != nil {
		c.Add(family, labels...)
		return
	}
	if m := Global(); m != nil {
		if vec := m.counter(family); vec != nil {
			vec.WithLabelValues(labels...).Inc()
		}
	}
}

// IncSegmentWrite counts a segment write (save, toggle, move, delete)
func IncSegmentWrite(op, result string) { count(FamilySegmentWrites, op, result) }

// IncTokenVerification counts an identity token verification
func IncTokenVerification(result string) { count(FamilyTokenVerifications, result) }

// IncHistoryExport counts a history download
func IncHistoryExport(format string) { count(FamilyHistoryExports, format) }

func IncMailCheck(result string) { count(FamilyMailChecks, result) }

// IncRateLimitExceeded counts a request rejected by a limiter
func IncRateLimitExceeded(level string) { count(FamilyRateLimitExceeded, level) }
