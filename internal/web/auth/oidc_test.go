package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/foxzi/outreach/internal/web/config"
)

func TestRandomToken(t *testing.T) {
	a, err := randomToken()
	if err != nil {
		t.Fatalf("randomToken() error = %v", err)
	}
	b, _ := randomToken()
	if a == b {
		t.Error("randomToken() returned duplicates")
	}
	// 32 bytes unpadded base64
	if len(a) != 43 {
		t.Errorf("randomToken() length = %d, want 43", len(a))
	}
}

func TestOIDCProvider_AuthCodeURL(t *testing.T) {
	p := newOIDCProvider(&config.OIDCConfig{
		ClientID:    "console",
		RedirectURL: "https://console.example.com/auth/callback",
		Scopes:      []string{"openid", "email"},
	}, oauth2.Endpoint{AuthURL: "https://idp.example.com/authorize", TokenURL: "https://idp.example.com/token"})

	raw, state, err := p.AuthCodeURL()
	if err != nil {
		t.Fatalf("AuthCodeURL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	q := u.Query()
	if q.Get("state") != state {
		t.Errorf("state = %q, want %q", q.Get("state"), state)
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Errorf("PKCE parameters missing: %v", q)
	}
	if q.Get("nonce") != p.pending[state].nonce {
		t.Errorf("nonce = %q, want the pending nonce", q.Get("nonce"))
	}
}

func TestOIDCProvider_StateIsSingleUse(t *testing.T) {
	p := newOIDCProvider(&config.OIDCConfig{}, oauth2.Endpoint{})
	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }

	_, state, err := p.AuthCodeURL()
	if err != nil {
		t.Fatalf("AuthCodeURL() error = %v", err)
	}
	if _, ok := p.take(state); !ok {
		t.Error("take() = false for a fresh state")
	}
	if _, ok := p.take(state); ok {
		t.Error("take() = true for a used state")
	}

	_, state, _ = p.AuthCodeURL()
	now = now.Add(pendingLifetime + time.Second)
	if _, ok := p.take(state); ok {
		t.Error("take() = true for an expired state")
	}

	if _, err := p.Exchange(context.Background(), "unknown", "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Exchange() error = %v, want ErrInvalidState", err)
	}
}

func TestOIDCProvider_DisabledConfig(t *testing.T) {
	provider, err := NewOIDCProvider(context.Background(), &config.OIDCConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewOIDCProvider() error = %v", err)
	}
	if provider != nil {
		t.Error("NewOIDCProvider() should return nil for disabled config")
	}
}

func TestGroupAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		groups  []string
		want    bool
	}{
		{"no restriction", nil, nil, true},
		{"member", []string{"ops"}, []string{"dev", "ops"}, true},
		{"not member", []string{"ops"}, []string{"dev"}, false},
		{"no groups claim", []string{"ops"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := groupAllowed(tt.allowed, tt.groups); got != tt.want {
				t.Errorf("groupAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalProvider(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	p := NewLocalProvider(&config.LocalConfig{
		JWTSecret: "0123456789abcdef0123456789abcdef",
		Users:     []config.LocalUser{{UID: "u1", Email: "Ops@Example.com", PasswordHash: string(hash)}},
	}, time.Hour)

	login, err := p.Login(" ops@example.com ", "hunter2")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.UID != "u1" || login.IDToken == "" {
		t.Errorf("Login() = %+v", login)
	}

	principal, err := p.Verifier().Verify(context.Background(), login.IDToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if principal.UID != "u1" || principal.Email != "Ops@Example.com" {
		t.Errorf("Verify() = %+v", principal)
	}

	if _, err := p.Login("ops@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(wrong password) error = %v", err)
	}
	if _, err := p.Login("nobody@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(unknown user) error = %v", err)
	}
}

func TestSealer_RoundTrip(t *testing.T) {
	s := NewSealer("0123456789abcdef0123456789abcdef", time.Hour, false)
	now := time.Unix(1700000000, 0)

	value, err := s.Seal(Session{IDToken: "tok", ExpiresAt: now.Add(time.Minute).Unix()})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	sess, err := s.Open(value, now)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if sess.IDToken != "tok" {
		t.Errorf("IDToken = %q", sess.IDToken)
	}

	if _, err := s.Open(value, now.Add(time.Minute)); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Open() after expiry error = %v, want ErrSessionExpired", err)
	}

	other := NewSealer("another-secret-another-secret-xx", time.Hour, false)
	if _, err := other.Open(value, now); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Open() with another key error = %v, want ErrInvalidSession", err)
	}

	raw, _ := base64.RawURLEncoding.DecodeString(value)
	raw[len(raw)-1] ^= 1
	if _, err := s.Open(base64.RawURLEncoding.EncodeToString(raw), now); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Open() of a tampered value error = %v", err)
	}

	if _, err := s.Open("short", now); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Open(short) error = %v", err)
	}
}

func TestSealer_Cookie(t *testing.T) {
	s := NewSealer("0123456789abcdef0123456789abcdef", time.Hour, true)

	rec := httptest.NewRecorder()
	login := &Login{IDToken: "tok", ExpiresAt: time.Now().Add(10 * time.Minute)}
	if err := s.Start(rec, login); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookie || !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("cookies = %+v", cookies)
	}
	// token expiry caps the session
	if cookies[0].Expires.After(login.ExpiresAt.Add(time.Second)) {
		t.Errorf("cookie expires %v after token expiry %v", cookies[0].Expires, login.ExpiresAt)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	if got := s.Token(req); got != "tok" {
		t.Errorf("Token() = %q, want tok", got)
	}

	if got := s.Token(httptest.NewRequest(http.MethodGet, "/", nil)); got != "" {
		t.Errorf("Token() without cookie = %q", got)
	}

	rec = httptest.NewRecorder()
	s.Clear(rec)
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("Clear() cookies = %+v", c)
	}
}
