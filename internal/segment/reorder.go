package segment

import (
	"fmt"
	"sort"

	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/models"
)

// Direction moves a segment towards the top (Up) or bottom (Down)
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// ParseDirection reads "up" or "down"
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return 0, fmt.Errorf("invalid direction %q", s)
}

// Sort orders segments by priority, then creation time
func Sort(segs []models.Segment) {
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].Priority != segs[j].Priority {
			return segs[i].Priority < segs[j].Priority
		}
		return segs[i].CreatedAt < segs[j].CreatedAt
	})
}

// Move swaps the segment with its neighbour in dir and renumbers every
// priority to its index. Moving past either end returns the list
// unchanged with moved false.
func Move(segs []models.Segment, id string, dir Direction) ([]models.Segment, bool, error) {
	out := make([]models.Segment, len(segs))
	copy(out, segs)

	idx := -1
	for i, s := range out {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return out, false, fmt.Errorf("segment %s: %w", id, docstore.ErrNotFound)
	}

	j := idx + int(dir)
	if j < 0 || j >= len(out) {
		return out, false, nil
	}

	out[idx], out[j] = out[j], out[idx]
	for i := range out {
		out[i].Priority = i
	}
	return out, true, nil
}
