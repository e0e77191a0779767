// Package dashboard aggregates send history over a date range.
package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/outreach/internal/history"
)

const (
	secondsPerDay = 86400
	// DefaultDays is the length of the default range, ending today
	DefaultDays = 7
	// MaxDays caps the length of a requested range
	MaxDays = 366
	// DateLayout is the date input format
	DateLayout = "2006-01-02"
)

var ErrInvalidRange = errors.New("invalid date range")

// Range is an inclusive span of whole days in one location
type Range struct {
	Start time.Time // 00:00:00 of the first day
	End   time.Time // 23:59:59 of the last day
}

// NewRange spans the calendar days of start and end in loc
func NewRange(start, end time.Time, loc *time.Location) Range {
	s := start.In(loc)
	e := end.In(loc)
	return Range{
		Start: time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc),
		End:   time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, 0, loc),
	}
}

// DefaultRange covers the last DefaultDays days including today
func DefaultRange(now time.Time, loc *time.Location) Range {
	return NewRange(now.AddDate(0, 0, -(DefaultDays-1)), now, loc)
}

// ParseRange reads YYYY-MM-DD bounds; missing bounds fall back to the
// default range
func ParseRange(start, end string, now time.Time, loc *time.Location) (Range, error) {
	def := DefaultRange(now, loc)
	s, e := def.Start, def.End

	if start != "" {
		t, err := time.ParseInLocation(DateLayout, start, loc)
		if err != nil {
			return Range{}, fmt.Errorf("%w: start %q", ErrInvalidRange, start)
		}
		s = t
	}
	if end != "" {
		t, err := time.ParseInLocation(DateLayout, end, loc)
		if err != nil {
			return Range{}, fmt.Errorf("%w: end %q", ErrInvalidRange, end)
		}
		e = t
	}

	r := NewRange(s, e, loc)
	if r.End.Before(r.Start) {
		return Range{}, fmt.Errorf("%w: end before start", ErrInvalidRange)
	}
	if r.Days() > MaxDays {
		return Range{}, fmt.Errorf("%w: longer than %d days", ErrInvalidRange, MaxDays)
	}
	return r, nil
}

// dayNumber counts calendar days since the epoch for the date t shows in
// its own location
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

// Days is the number of calendar days in the range, at least one
func (r Range) Days() int {
	days := int(dayNumber(r.End)-dayNumber(r.Start)) + 1
	if days < 1 {
		return 1
	}
	return days
}

// Contains reports whether epoch second ts falls inside the range
func (r Range) Contains(ts int64) bool {
	return ts >= r.Start.Unix() && ts <= r.End.Unix()
}

// Bucket returns the index of the calendar day ts falls on in the
// range's location; ok is false outside the range
func (r Range) Bucket(ts int64) (int, bool) {
	if !r.Contains(ts) {
		return 0, false
	}
	t := time.Unix(ts, 0).In(r.Start.Location())
	idx := int(dayNumber(t) - dayNumber(r.Start))
	if idx < 0 || idx >= r.Days() {
		return 0, false
	}
	return idx, true
}

// StartInput and EndInput format the bounds for date inputs
func (r Range) StartInput() string { return r.Start.Format(DateLayout) }
func (r Range) EndInput() string   { return r.End.Format(DateLayout) }

// Day is one chart bucket
type Day struct {
	Date  time.Time
	Count int
}

// Label is M/D
func (d Day) Label() string {
	return fmt.Sprintf("%d/%d", int(d.Date.Month()), d.Date.Day())
}

// Stats is the dashboard model
type Stats struct {
	Range   Range
	Summary history.Summary
	Days    []Day
	Max     int
}

// Counts returns the per-day counts
func (s Stats) Counts() []int {
	counts := make([]int, len(s.Days))
	for i, d := range s.Days {
		counts[i] = d.Count
	}
	return counts
}

// Build classifies records in the range and buckets dated ones by day.
// Undated records are counted in the totals but not in any bucket.
func Build(recs []history.Record, r Range) Stats {
	days := make([]Day, r.Days())
	for i := range days {
		days[i].Date = r.Start.AddDate(0, 0, i)
	}

	var rows []history.Row
	for _, rec := range recs {
		ts, dated := history.SentAt(rec.Fields)
		if dated && !r.Contains(ts) {
			continue
		}
		rows = append(rows, history.Row{Outcome: history.Classify(rec.Fields)})
		if !dated {
			continue
		}
		if idx, ok := r.Bucket(ts); ok {
			days[idx].Count++
		}
	}

	stats := Stats{
		Range:   r,
		Summary: history.Summarize(rows),
		Days:    days,
	}
	for _, d := range days {
		if d.Count > stats.Max {
			stats.Max = d.Count
		}
	}
	return stats
}
