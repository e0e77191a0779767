package auth

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/web/config"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// LocalProvider signs in users listed in the configuration and mints
// HS256 ID tokens for them
type LocalProvider struct {
	users  map[string]config.LocalUser // by lower-cased email
	signer *identity.HMACVerifier
	ttl    time.Duration
}

func NewLocalProvider(cfg *config.LocalConfig, ttl time.Duration) *LocalProvider {
	users := make(map[string]config.LocalUser, len(cfg.Users))
	for _, u := range cfg.Users {
		users[strings.ToLower(u.Email)] = u
	}
	return &LocalProvider{
		users:  users,
		signer: identity.NewHMACVerifier(cfg.JWTSecret, cfg.Issuer, cfg.Audience),
		ttl:    ttl,
	}
}

// Verifier returns the verifier accepting the tokens Login mints
func (p *LocalProvider) Verifier() identity.Verifier {
	return p.signer
}

// Login checks the password and returns a freshly signed ID token
func (p *LocalProvider) Login(email, password string) (*Login, error) {
	u, ok := p.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := p.signer.Sign(u.UID, u.Email, p.ttl)
	if err != nil {
		return nil, err
	}
	return &Login{
		IDToken:   token,
		UID:       u.UID,
		Email:     u.Email,
		ExpiresAt: time.Now().Add(p.ttl),
	}, nil
}
