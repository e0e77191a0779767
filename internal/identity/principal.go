// Package identity resolves the signed-in user from identity-provider ID tokens.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotSignedIn is returned when no principal can be resolved in time
	ErrNotSignedIn = errors.New("not signed in")
	errGateTimeout = errors.New("identity provider not ready")
)

// Principal is a verified user
type Principal struct {
	UID       string         `json:"uid"`
	Email     string         `json:"email,omitempty"`
	Name      string         `json:"name,omitempty"`
	ExpiresAt time.Time      `json:"expires_at"`
	Claims    map[string]any `json:"claims,omitempty"`
}

// Expired reports whether the token behind p is no longer valid at now
func (p *Principal) Expired(now time.Time) bool {
	if p == nil {
		return true
	}
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Source yields the current principal. Write paths call it immediately
// before writing so an expired or revoked session is caught.
type Source interface {
	Principal(ctx context.Context) (*Principal, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) (*Principal, error)

func (f SourceFunc) Principal(ctx context.Context) (*Principal, error) {
	return f(ctx)
}

// Static returns a Source that always yields p
func Static(p *Principal) Source {
	return SourceFunc(func(ctx context.Context) (*Principal, error) {
		if p == nil {
			return nil, ErrNotSignedIn
		}
		return p, nil
	})
}

type ctxKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}

func principalFromClaims(subject string, expiry time.Time, claims map[string]any) *Principal {
	uid := subject
	if uid == "" {
		uid = stringClaim(claims, "user_id")
	}
	if uid == "" {
		uid = stringClaim(claims, "uid")
	}

	decoded := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		decoded[k] = v
	}
	decoded["uid"] = uid

	return &Principal{
		UID:       uid,
		Email:     stringClaim(claims, "email"),
		Name:      stringClaim(claims, "name"),
		ExpiresAt: expiry,
		Claims:    decoded,
	}
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}
