package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/models"
)

// ErrSaveInFlight is returned while another save for the same user runs
var ErrSaveInFlight = errors.New("save already in progress")

// Repository stores segments under a user namespace
type Repository interface {
	List(ctx context.Context, uid string) ([]models.Segment, error)
	Get(ctx context.Context, uid, id string) (*models.Segment, error)
	Create(ctx context.Context, uid string, seg *models.Segment) error
	Update(ctx context.Context, uid string, seg *models.Segment) error
	SetEnabled(ctx context.Context, uid, id string, enabled bool) error
	Reorder(ctx context.Context, uid string, ids []string) error
	Delete(ctx context.Context, uid, id string) error
}

// Service runs segment operations for the signed-in user
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// NewService creates a segment service
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]bool),
	}
}

func (s *Service) authorize(ctx context.Context, src identity.Source) (*identity.Principal, error) {
	return docstore.Authorize(ctx, src, s.now())
}

func (s *Service) begin(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[uid] {
		return false
	}
	s.inflight[uid] = true
	return true
}

func (s *Service) end(uid string) {
	s.mu.Lock()
	delete(s.inflight, uid)
	s.mu.Unlock()
}

// List returns the caller's segments in priority order
func (s *Service) List(ctx context.Context, src identity.Source) ([]models.Segment, error) {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return nil, err
	}
	segs, err := s.repo.List(ctx, p.UID)
	if err != nil {
		return nil, err
	}
	Sort(segs)
	return segs, nil
}

// Get returns one of the caller's segments
func (s *Service) Get(ctx context.Context, src identity.Source, id string) (*models.Segment, error) {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, p.UID, id)
}

// Save validates the draft and creates or updates the segment. The
// caller is resolved first; validation failures never reach storage.
func (s *Service) Save(ctx context.Context, src identity.Source, d Draft) (models.Segment, error) {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return models.Segment{}, err
	}

	if !s.begin(p.UID) {
		return models.Segment{}, ErrSaveInFlight
	}
	defer s.end(p.UID)

	seg, err := Validate(d)
	if err != nil {
		return models.Segment{}, err
	}

	// Identity may lapse between the first check and the write
	if p, err = s.authorize(ctx, src); err != nil {
		return models.Segment{}, err
	}

	now := s.now().UnixMilli()
	seg.UpdatedAt = now

	if d.IsNew() {
		seg.CreatedAt = now
		err = s.repo.Create(ctx, p.UID, &seg)
	} else {
		var existing *models.Segment
		existing, err = s.repo.Get(ctx, p.UID, d.ID)
		if err == nil {
			seg.CreatedAt = existing.CreatedAt
			seg.Priority = existing.Priority
			err = s.repo.Update(ctx, p.UID, &seg)
		}
	}
	metrics.IncSegmentWrite("save", metrics.Result(err))
	if err != nil {
		s.logger.Error("failed to save segment", "uid", p.UID, "id", d.ID, "error", err)
		return models.Segment{}, err
	}

	s.logger.Info("segment saved", "uid", p.UID, "id", seg.ID, "created", d.IsNew())
	return seg, nil
}

// Toggle writes only the enabled flag of a segment
func (s *Service) Toggle(ctx context.Context, src identity.Source, id string, enabled bool) error {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return err
	}

	err = s.repo.SetEnabled(ctx, p.UID, id, enabled)
	metrics.IncSegmentWrite("toggle", metrics.Result(err))
	if err != nil {
		s.logger.Error("failed to toggle segment", "uid", p.UID, "id", id, "enabled", enabled, "error", err)
		return err
	}
	return nil
}

// Move swaps a segment with its neighbour and stores the renumbered
// priorities in one batch. The returned list is what the caller should
// display: the new order on success, a fresh read when the write fails.
func (s *Service) Move(ctx context.Context, src identity.Source, id string, dir Direction) ([]models.Segment, error) {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.List(ctx, p.UID)
	if err != nil {
		return nil, err
	}
	Sort(current)

	moved, changed, err := Move(current, id, dir)
	if err != nil {
		return current, err
	}
	if !changed {
		return current, nil
	}

	ids := make([]string, len(moved))
	for i, seg := range moved {
		ids[i] = seg.ID
	}

	if p, err = s.authorize(ctx, src); err != nil {
		return current, err
	}

	err = s.repo.Reorder(ctx, p.UID, ids)
	metrics.IncSegmentWrite("move", metrics.Result(err))
	if err != nil {
		s.logger.Error("failed to reorder segments", "uid", p.UID, "id", id, "error", err)
		fresh, lerr := s.repo.List(ctx, p.UID)
		if lerr != nil {
			return current, fmt.Errorf("%w (reload failed: %v)", err, lerr)
		}
		Sort(fresh)
		return fresh, err
	}
	return moved, nil
}

// Delete removes a segment; deleting a missing segment is not an error
func (s *Service) Delete(ctx context.Context, src identity.Source, id string) error {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return err
	}

	err = s.repo.Delete(ctx, p.UID, id)
	metrics.IncSegmentWrite("delete", metrics.Result(err))
	if err != nil {
		s.logger.Error("failed to delete segment", "uid", p.UID, "id", id, "error", err)
		return err
	}
	s.logger.Info("segment deleted", "uid", p.UID, "id", id)
	return nil
}

// Preview returns the segment that would be chosen for an applicant
func (s *Service) Preview(ctx context.Context, src identity.Source, a Applicant) (models.Segment, bool, error) {
	segs, err := s.List(ctx, src)
	if err != nil {
		return models.Segment{}, false, err
	}
	seg, ok := Select(segs, a)
	return seg, ok, nil
}
