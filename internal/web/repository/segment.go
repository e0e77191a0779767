package repository

import (
	"context"
	"fmt"

	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/models"
)

const collectionSegments = "target_segments"

type SegmentRepository struct {
	store *docstore.Store
}

func NewSegmentRepository(store *docstore.Store) *SegmentRepository {
	return &SegmentRepository{store: store}
}

// List returns all segments ordered by priority
func (r *SegmentRepository) List(ctx context.Context, uid string) ([]models.Segment, error) {
	docs, err := r.store.Collection(uid, collectionSegments).List(ctx, docstore.Query{OrderBy: "priority"})
	if err != nil {
		return nil, err
	}

	segs := make([]models.Segment, 0, len(docs))
	for _, doc := range docs {
		s, err := decodeSegment(doc)
		if err != nil {
			return nil, err
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// Get returns a segment or docstore.ErrNotFound
func (r *SegmentRepository) Get(ctx context.Context, uid, id string) (*models.Segment, error) {
	doc, err := r.store.Collection(uid, collectionSegments).Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s, err := decodeSegment(*doc)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// storedConditions is the conditions map as written by any console
// version. Older documents carry a single "kana" flag instead of
// katakana and hiragana, and may omit flags altogether.
type storedConditions struct {
	NameTypes struct {
		Kanji    *bool `json:"kanji"`
		Katakana *bool `json:"katakana"`
		Hiragana *bool `json:"hiragana"`
		Alpha    *bool `json:"alpha"`
		Kana     *bool `json:"kana"`
	} `json:"nameTypes"`
	Genders struct {
		Male   *bool `json:"male"`
		Female *bool `json:"female"`
	} `json:"genders"`
	AgeRanges struct {
		MaleMin   *int `json:"maleMin"`
		MaleMax   *int `json:"maleMax"`
		FemaleMin *int `json:"femaleMin"`
		FemaleMax *int `json:"femaleMax"`
	} `json:"ageRanges"`
}

func decodeSegment(doc docstore.Document) (models.Segment, error) {
	var raw struct {
		models.Segment
		Conditions storedConditions `json:"conditions"`
	}
	if err := doc.Decode(&raw); err != nil {
		return models.Segment{}, fmt.Errorf("failed to decode segment %s: %w", doc.ID, err)
	}

	s := raw.Segment
	s.ID = doc.ID
	s.Conditions = raw.Conditions.normalize()
	return s, nil
}

// normalize fills missing flags with true and missing ages with the
// default bounds
func (c storedConditions) normalize() models.Conditions {
	nt := c.NameTypes
	katakana, hiragana := nt.Katakana, nt.Hiragana
	if nt.Kana != nil {
		katakana, hiragana = nt.Kana, nt.Kana
	}
	return models.Conditions{
		NameTypes: models.NameTypes{
			Kanji:    valueOr(nt.Kanji, true),
			Katakana: valueOr(katakana, true),
			Hiragana: valueOr(hiragana, true),
			Alpha:    valueOr(nt.Alpha, true),
		},
		Genders: models.Genders{
			Male:   valueOr(c.Genders.Male, true),
			Female: valueOr(c.Genders.Female, true),
		},
		AgeRanges: models.AgeRanges{
			MaleMin:   valueOr(c.AgeRanges.MaleMin, models.DefaultMinAge),
			MaleMax:   valueOr(c.AgeRanges.MaleMax, models.DefaultMaxAge),
			FemaleMin: valueOr(c.AgeRanges.FemaleMin, models.DefaultMinAge),
			FemaleMax: valueOr(c.AgeRanges.FemaleMax, models.DefaultMaxAge),
		},
	}
}

func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

// Create appends a segment after the existing ones and assigns its id
func (r *SegmentRepository) Create(ctx context.Context, uid string, seg *models.Segment) error {
	coll := r.store.Collection(uid, collectionSegments)

	existing, err := coll.List(ctx, docstore.Query{})
	if err != nil {
		return err
	}
	seg.Priority = len(existing)

	id, err := coll.Add(ctx, seg)
	if err != nil {
		return err
	}
	seg.ID = id
	return nil
}

// Update overwrites the editable fields of an existing segment
func (r *SegmentRepository) Update(ctx context.Context, uid string, seg *models.Segment) error {
	return r.store.Collection(uid, collectionSegments).Update(ctx, seg.ID, map[string]any{
		"title":      seg.Title,
		"enabled":    seg.Enabled,
		"conditions": seg.Conditions,
		"actions":    seg.Actions,
		"updatedAt":  seg.UpdatedAt,
	})
}

// SetEnabled writes only the enabled flag
func (r *SegmentRepository) SetEnabled(ctx context.Context, uid, id string, enabled bool) error {
	return r.store.Collection(uid, collectionSegments).Update(ctx, id, map[string]any{
		"enabled": enabled,
	})
}

// Reorder sets each listed segment's priority to its index, atomically
func (r *SegmentRepository) Reorder(ctx context.Context, uid string, ids []string) error {
	return r.store.Batch(ctx, uid, func(b *docstore.Batch) error {
		for i, id := range ids {
			if err := b.Update(collectionSegments, id, map[string]any{"priority": i}); err != nil {
				return fmt.Errorf("failed to set priority of %s: %w", id, err)
			}
		}
		return nil
	})
}

// Delete removes a segment
func (r *SegmentRepository) Delete(ctx context.Context, uid, id string) error {
	return r.store.Collection(uid, collectionSegments).Delete(ctx, id)
}
