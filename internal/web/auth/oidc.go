package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/foxzi/outreach/internal/web/config"
)

var (
	ErrInvalidState = errors.New("invalid state")
	ErrGroupDenied  = errors.New("user not in allowed groups")
	errNoIDToken    = errors.New("no id_token in response")
	errNonce        = errors.New("id_token nonce mismatch")
)

const pendingLifetime = 5 * time.Minute

// pendingLogin is an authorization request waiting for its callback
type pendingLogin struct {
	issued   time.Time
	verifier string // PKCE
	nonce    string
}

// OIDCProvider signs operators in with the authorization code flow
type OIDCProvider struct {
	allowedGroups []string
	oauth2        oauth2.Config
	verifier      *oidc.IDTokenVerifier
	now           func() time.Time

	mu      sync.Mutex
	pending map[string]pendingLogin // by state
}

// NewOIDCProvider runs discovery against the issuer. It returns nil when
// OIDC is disabled.
func NewOIDCProvider(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("OIDC discovery for %s: %w", cfg.IssuerURL, err)
	}

	p := newOIDCProvider(cfg, provider.Endpoint())
	p.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return p, nil
}

func newOIDCProvider(cfg *config.OIDCConfig, endpoint oauth2.Endpoint) *OIDCProvider {
	return &OIDCProvider{
		allowedGroups: cfg.AllowedGroups,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		now:     time.Now,
		pending: make(map[string]pendingLogin),
	}
}

// AuthCodeURL starts a sign-in and returns the provider URL and its state
func (p *OIDCProvider) AuthCodeURL() (string, string, error) {
	state, err := randomToken()
	if err != nil {
		return "", "", err
	}
	nonce, err := randomToken()
	if err != nil {
		return "", "", err
	}
	pl := pendingLogin{issued: p.now(), verifier: oauth2.GenerateVerifier(), nonce: nonce}

	p.mu.Lock()
	for s, old := range p.pending {
		if pl.issued.Sub(old.issued) > pendingLifetime {
			delete(p.pending, s)
		}
	}
	p.pending[state] = pl
	p.mu.Unlock()

	url := p.oauth2.AuthCodeURL(state, oauth2.S256ChallengeOption(pl.verifier), oidc.Nonce(nonce))
	return url, state, nil
}

// take removes the pending login for state; an expired one is not returned
func (p *OIDCProvider) take(state string) (pendingLogin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.pending[state]
	if !ok {
		return pendingLogin{}, false
	}
	delete(p.pending, state)
	return pl, p.now().Sub(pl.issued) <= pendingLifetime
}

// Exchange completes the sign-in started with state
func (p *OIDCProvider) Exchange(ctx context.Context, state, code string) (*Login, error) {
	pl, ok := p.take(state)
	if !ok {
		return nil, ErrInvalidState
	}

	token, err := p.oauth2.Exchange(ctx, code, oauth2.VerifierOption(pl.verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errNoIDToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}
	if idToken.Nonce != pl.nonce {
		return nil, errNonce
	}

	var claims struct {
		Email  string   `json:"email"`
		Name   string   `json:"name"`
		Groups []string `json:"groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if !groupAllowed(p.allowedGroups, claims.Groups) {
		return nil, ErrGroupDenied
	}

	return &Login{
		IDToken:   rawIDToken,
		UID:       idToken.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		ExpiresAt: idToken.Expiry,
	}, nil
}

func groupAllowed(allowed, groups []string) bool {
	if len(allowed) == 0 {
		return true
	}
	return slices.ContainsFunc(groups, func(g string) bool {
		return slices.Contains(allowed, g)
	})
}

// Login is a completed sign-in
type Login struct {
	IDToken   string
	UID       string
	Email     string
	Name      string
	ExpiresAt time.Time
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
