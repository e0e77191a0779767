package history

import "testing"

func TestStatusUpdates(t *testing.T) {
	recs := []Record{
		{ID: "a", Fields: map[string]any{"status": "sent"}},
		{ID: "b", Fields: map[string]any{"status": "送信済"}},
		{ID: "c", Fields: map[string]any{"status": "Sent"}},
		{ID: "d", Fields: map[string]any{}},
		{ID: "e", Fields: map[string]any{"status": "sent", "tel": "09000000000"}},
	}

	got := StatusUpdates(recs)
	if len(got) != 2 {
		t.Fatalf("StatusUpdates() = %v, want 2 updates", got)
	}
	for _, id := range []string{"a", "e"} {
		if got[id]["status"] != SentStatus {
			t.Errorf("update for %s = %v", id, got[id])
		}
	}
}

func TestFailures(t *testing.T) {
	recs := []Record{
		{ID: "ok", Fields: map[string]any{"status": "送信済"}},
		{ID: "f1", Fields: map[string]any{"response": map[string]any{"status_code": float64(503)}}},
		{ID: "out", Fields: map[string]any{"status": "対象外"}},
		{ID: "f2", Fields: map[string]any{"status": "error"}},
		{ID: "f3", Fields: map[string]any{"response": "timeout"}},
	}

	got := Failures(recs, 0)
	if len(got) != 3 || got[0].ID != "f1" || got[1].ID != "f2" || got[2].ID != "f3" {
		t.Errorf("Failures() = %v", got)
	}

	if got := Failures(recs, 2); len(got) != 2 {
		t.Errorf("Failures(limit 2) returned %d records", len(got))
	}
}
