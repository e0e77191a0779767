package repository

import (
	"context"
	"fmt"

	"github.com/foxzi/outreach/internal/history"
	"github.com/foxzi/outreach/internal/web/docstore"
)

const collectionHistory = "sms_history"

// HistoryRepository reads the send history written by the RPA engine
type HistoryRepository struct {
	store *docstore.Store
}

func NewHistoryRepository(store *docstore.Store) *HistoryRepository {
	return &HistoryRepository{store: store}
}

// All returns every history record in storage order
func (r *HistoryRepository) All(ctx context.Context, uid string) ([]history.Record, error) {
	docs, err := r.store.Collection(uid, collectionHistory).List(ctx, docstore.Query{})
	if err != nil {
		return nil, err
	}

	recs := make([]history.Record, 0, len(docs))
	for _, doc := range docs {
		fields, err := doc.Fields()
		if err != nil {
			return nil, fmt.Errorf("failed to decode history %s: %w", doc.ID, err)
		}
		recs = append(recs, history.Record{ID: doc.ID, Fields: fields})
	}
	return recs, nil
}

// Latest returns up to limit records, newest first. Ordering uses the
// normalized send time so records written with legacy timestamp keys are
// not dropped; records without any timestamp come last.
func (r *HistoryRepository) Latest(ctx context.Context, uid string, limit int) ([]history.Record, error) {
	recs, err := r.All(ctx, uid)
	if err != nil {
		return nil, err
	}
	return history.Latest(recs, limit), nil
}

// Add stores a record and returns its id
func (r *HistoryRepository) Add(ctx context.Context, uid string, fields map[string]any) (string, error) {
	return r.store.Collection(uid, collectionHistory).Add(ctx, fields)
}

// SetFields merges fields into each listed record in one transaction
func (r *HistoryRepository) SetFields(ctx context.Context, uid string, updates map[string]map[string]any) error {
	return r.store.Batch(ctx, uid, func(b *docstore.Batch) error {
		for id, fields := range updates {
			if err := b.Update(collectionHistory, id, fields); err != nil {
				return fmt.Errorf("failed to update history %s: %w", id, err)
			}
		}
		return nil
	})
}
