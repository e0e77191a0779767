// Package history normalizes and classifies send-history records.
package history

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Outcome is the classification of a history record
type Outcome int

const (
	Failure Outcome = iota
	Success
	TargetOut
)

// Label is the text shown in the table, the counters and exports
func (o Outcome) Label() string {
	switch o {
	case Success:
		return "送信成功"
	case TargetOut:
		return "対象外"
	default:
		return "送信失敗"
	}
}

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TargetOut:
		return "target_out"
	default:
		return "failure"
	}
}

// Record is a loosely typed history document
type Record struct {
	ID     string
	Fields map[string]any
}

var targetOutStatuses = map[string]bool{
	"対象外":        true,
	"target_out": true,
	"taishougai": true,
}

// Classify decides the outcome of a record. The branches are evaluated in
// order and the first match wins.
func Classify(fields map[string]any) Outcome {
	status, hasStatus := statusText(fields["status"])
	response, hasResponse := fields["response"]
	hasResponse = hasResponse && response != nil

	if !hasStatus && !hasResponse {
		return TargetOut
	}

	if hasStatus {
		norm := normalizeStatus(status)
		if targetOutStatuses[norm] || strings.Contains(norm, "対象外") {
			return TargetOut
		}
		if isSuccessStatus(norm) {
			return Success
		}
	}

	if hasResponse {
		if code, ok := responseCode(response); ok {
			if code >= 200 && code < 300 {
				return Success
			}
			return Failure
		}
	}

	return Failure
}

func statusText(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, s != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func isSuccessStatus(norm string) bool {
	switch {
	case norm == "sent", norm == "success":
		return true
	case strings.HasPrefix(norm, "送信済"):
		return true
	case strings.Contains(norm, "送信") && strings.Contains(norm, "済"):
		return true
	}
	return false
}

var responseCodeKeys = []string{"status_code", "status", "code", "codeNumber"}

func responseCode(v any) (int, bool) {
	if m, ok := v.(map[string]any); ok {
		for _, key := range responseCodeKeys {
			if code, ok := numeric(m[key]); ok {
				return int(code), true
			}
		}
		return 0, false
	}
	code, ok := numeric(v)
	return int(code), ok
}

// numeric accepts JSON numbers, Go integers and numeric strings
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
