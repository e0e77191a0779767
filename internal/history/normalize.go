package history

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DisplayTimeLayout is YYYY/MM/DD HH:MM:SS
const DisplayTimeLayout = "2006/01/02 15:04:05"

var sentAtKeys = []string{"sentAt", "sent_at", "sent_at_seconds", "sent_at_ts"}

// SentAt returns the send time in epoch seconds. The first present key
// wins; values may be numbers, numeric strings or {seconds: n} maps.
func SentAt(fields map[string]any) (int64, bool) {
	for _, key := range sentAtKeys {
		v, ok := fields[key]
		if !ok || v == nil || v == "" {
			continue
		}
		return epochSeconds(v)
	}
	return 0, false
}

func epochSeconds(v any) (int64, bool) {
	if m, ok := v.(map[string]any); ok {
		for _, key := range []string{"seconds", "_seconds"} {
			if s, ok := numeric(m[key]); ok {
				return int64(s), true
			}
		}
		return 0, false
	}
	s, ok := numeric(v)
	if !ok {
		return 0, false
	}
	return int64(s), true
}

// Row is a normalized history record ready for display and export
type Row struct {
	ID       string
	Name     string
	Furigana string
	Gender   string
	Birth    string
	Age      string
	Email    string
	Tel      string
	Addr     string
	School   string
	OuboNo   string
	SentAt   string // formatted, empty when unknown
	SentUnix int64
	HasSent  bool
	Outcome  Outcome
	Status   string // raw status text for the detail column
}

// Result is the outcome label
func (r Row) Result() string {
	return r.Outcome.Label()
}

// Normalize converts a record into a Row, formatting times in loc
func Normalize(rec Record, loc *time.Location) Row {
	f := rec.Fields
	name, furigana := SplitName(firstString(f, "name", "fullName"))
	birth, age := SplitBirth(firstString(f, "birth", "birthdate"))

	row := Row{
		ID:       rec.ID,
		Name:     name,
		Furigana: furigana,
		Gender:   firstString(f, "gender"),
		Birth:    birth,
		Age:      age,
		Email:    firstString(f, "email"),
		Tel:      firstString(f, "tel", "phone", "mobilenumber"),
		Addr:     firstString(f, "addr"),
		School:   firstString(f, "school"),
		OuboNo:   OuboNo(f),
		Outcome:  Classify(f),
	}
	row.Status, _ = statusText(f["status"])

	if s, ok := SentAt(f); ok {
		row.SentUnix = s
		row.HasSent = true
		row.SentAt = time.Unix(s, 0).In(loc).Format(DisplayTimeLayout)
	}
	return row
}

// NormalizeAll normalizes records in order
func NormalizeAll(recs []Record, loc *time.Location) []Row {
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, Normalize(rec, loc))
	}
	return rows
}

// Latest sorts records by send time descending, undated records last,
// and keeps at most limit of them
func Latest(recs []Record, limit int) []Record {
	type keyed struct {
		rec Record
		ts  int64
		ok  bool
	}
	ks := make([]keyed, len(recs))
	for i, r := range recs {
		ts, ok := SentAt(r.Fields)
		ks[i] = keyed{rec: r, ts: ts, ok: ok}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].ok != ks[j].ok {
			return ks[i].ok
		}
		return ks[i].ts > ks[j].ts
	})

	if limit > 0 && len(ks) > limit {
		ks = ks[:limit]
	}
	out := make([]Record, len(ks))
	for i, k := range ks {
		out[i] = k.rec
	}
	return out
}

func firstString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := fields[key].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		default:
			if s, ok := statusText(v); ok {
				return s
			}
		}
	}
	return ""
}

var (
	parenPattern = regexp.MustCompile(`^(.+?)\s*[（(]\s*([^）)]+)\s*[）)]\s*$`)
	kanaPattern  = regexp.MustCompile(`[\x{3040}-\x{30FF}]`)
	kanjiPattern = regexp.MustCompile(`[\x{4E00}-\x{9FFF}]`)
	birthPattern = regexp.MustCompile(`^(.+?)\s*[（(]\s*([0-9]{1,3})\s*歳?\s*[）)]\s*$`)
	ouboPattern  = regexp.MustCompile(`[A-Za-z0-9]+(?:-[A-Za-z0-9]+)+`)
)

// SplitName separates "name (furigana)" into its parts. When the
// parenthesised part contains kana it is the reading; when the outer part
// contains kana and the inner part kanji they are swapped.
func SplitName(raw string) (name, furigana string) {
	raw = strings.TrimSpace(raw)
	m := parenPattern.FindStringSubmatch(raw)
	if m == nil {
		return raw, ""
	}

	left := strings.TrimSpace(m[1])
	inside := strings.TrimSpace(m[2])

	if kanaPattern.MatchString(inside) {
		return left, inside
	}
	if kanaPattern.MatchString(left) && kanjiPattern.MatchString(inside) {
		return inside, left
	}
	return left, inside
}

// SplitBirth separates "1990/01/02 (34歳)" into date and age
func SplitBirth(raw string) (birth, age string) {
	raw = strings.TrimSpace(raw)
	m := birthPattern.FindStringSubmatch(raw)
	if m == nil {
		return raw, ""
	}
	return strings.TrimSpace(m[1]), m[2]
}

// OuboNo returns the application number, preferring the pre-extracted value
func OuboNo(fields map[string]any) string {
	if v := firstString(fields, "oubo_no_extracted"); v != "" {
		return v
	}
	raw := firstString(fields, "oubo_no")
	if m := ouboPattern.FindString(raw); m != "" {
		return m
	}
	return raw
}

// Summary holds the four history counters
type Summary struct {
	Total     int
	Sent      int
	Failed    int
	TargetOut int
}

// Summarize counts rows by outcome
func Summarize(rows []Row) Summary {
	s := Summary{Total: len(rows)}
	for _, r := range rows {
		switch r.Outcome {
		case Success:
			s.Sent++
		case TargetOut:
			s.TargetOut++
		default:
			s.Failed++
		}
	}
	return s
}

// PageSize is the number of rows per history page
const PageSize = 10

// Page is one page of rows
type Page struct {
	Rows   []Row
	Number int // 1-based
	Total  int // number of pages, at least 1
}

// Paginate returns page n (1-based, clamped) of rows
func Paginate(rows []Row, n, size int) Page {
	if size <= 0 {
		size = PageSize
	}
	total := (len(rows) + size - 1) / size
	if total < 1 {
		total = 1
	}
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}

	start := (n - 1) * size
	end := start + size
	if start > len(rows) {
		start = len(rows)
	}
	if end > len(rows) {
		end = len(rows)
	}
	return Page{Rows: rows[start:end], Number: n, Total: total}
}

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.Total }
func (p Page) Prev() int     { return p.Number - 1 }
func (p Page) Next() int     { return p.Number + 1 }

func (p Page) String() string {
	return fmt.Sprintf("%d / %d", p.Number, p.Total)
}
