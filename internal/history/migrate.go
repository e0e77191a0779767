package history

// Status values written by the engine. Older engine versions wrote the
// English "sent"; the console and the dispatcher expect the Japanese text.
const (
	LegacySentStatus = "sent"
	SentStatus       = "送信済"
)

// StatusUpdates returns the field updates that rewrite legacy status
// values, keyed by record id
func StatusUpdates(recs []Record) map[string]map[string]any {
	updates := map[string]map[string]any{}
	for _, rec := range recs {
		if s, ok := rec.Fields["status"].(string); ok && s == LegacySentStatus {
			updates[rec.ID] = map[string]any{"status": SentStatus}
		}
	}
	return updates
}

// Failures returns the records classified as failed, in order, up to limit
func Failures(recs []Record, limit int) []Record {
	var out []Record
	for _, rec := range recs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if Classify(rec.Fields) == Failure {
			out = append(out, rec)
		}
	}
	return out
}
