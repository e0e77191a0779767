package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}

	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	// Vectors without observations are not gathered; the gauges always are
	if len(families) < 4 {
		t.Errorf("Gather() returned %d families, want at least 4", len(families))
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
}

func TestIncSegmentWrite(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncSegmentWrite("save", ResultOK)
	IncSegmentWrite("save", ResultOK)
	IncSegmentWrite("toggle", ResultError)

	if got := counterValue(t, m.SegmentWritesTotal.WithLabelValues("save", "ok")); got != 2 {
		t.Errorf("save/ok = %v, want 2", got)
	}
	if got := counterValue(t, m.SegmentWritesTotal.WithLabelValues("toggle", "error")); got != 1 {
		t.Errorf("toggle/error = %v, want 1", got)
	}
}

func TestIncDomainCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncTokenVerification(ResultError)
	IncHistoryExport("xlsx")
	IncMailCheck(ResultOK)
	IncRateLimitExceeded("verify")
	IncRateLimitExceeded("verify")

	if got := counterValue(t, m.TokenVerificationsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("token verifications = %v, want 1", got)
	}
	if got := counterValue(t, m.HistoryExportsTotal.WithLabelValues("xlsx")); got != 1 {
		t.Errorf("history exports = %v, want 1", got)
	}
	if got := counterValue(t, m.MailChecksTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("mail checks = %v, want 1", got)
	}
	if got := counterValue(t, m.RateLimitExceededTotal.WithLabelValues("verify")); got != 2 {
		t.Errorf("rate limit exceeded = %v, want 2", got)
	}
}

func TestResult(t *testing.T) {
	if Result(nil) != ResultOK {
		t.Errorf("Result(nil) = %q, want ok", Result(nil))
	}
	if Result(errors.New("boom")) != ResultError {
		t.Errorf("Result(err) = %q, want error", Result(errors.New("boom")))
	}
}

func TestGlobalNilSafe(t *testing.T) {
	SetGlobal(nil)
	SetGlobalCollector(nil)

	// These should not panic when global is nil
	IncSegmentWrite("save", ResultOK)
	IncTokenVerification(ResultOK)
	IncHistoryExport("csv")
	IncMailCheck(ResultError)
	IncRateLimitExceeded("verify")
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}
