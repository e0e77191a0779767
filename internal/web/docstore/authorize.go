package docstore

import (
	"context"
	"time"

	"github.com/foxzi/outreach/internal/identity"
)

// Authorize resolves the caller from src. A principal whose token has
// lapsed is refused with ErrPermissionDenied, matching how the store
// treats a stale session.
func Authorize(ctx context.Context, src identity.Source, now time.Time) (*identity.Principal, error) {
	if src == nil {
		return nil, identity.ErrNotSignedIn
	}
	p, err := src.Principal(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil || p.UID == "" {
		return nil, identity.ErrNotSignedIn
	}
	if p.Expired(now) {
		return nil, ErrPermissionDenied
	}
	return p, nil
}
