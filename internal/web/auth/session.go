package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

// SessionCookie is the name of the cookie carrying the sealed session
const SessionCookie = "session"

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
)

// Session is what the browser holds between requests: the raw ID token,
// re-verified on every request, and the session expiry
type Session struct {
	IDToken   string `json:"t"`
	ExpiresAt int64  `json:"e"` // unix seconds
}

// Sealer encrypts sessions into cookie values
type Sealer struct {
	key    [32]byte
	ttl    time.Duration
	secure bool
}

func NewSealer(secret string, ttl time.Duration, secure bool) *Sealer {
	return &Sealer{key: sha256.Sum256([]byte(secret)), ttl: ttl, secure: secure}
}

// Seal encrypts and authenticates s
func (s *Sealer) Seal(sess Session) (string, error) {
	plain, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open decrypts a cookie value and checks its expiry
func (s *Sealer) Open(value string, now time.Time) (*Session, error) {
	box, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(box) < 24+secretbox.Overhead {
		return nil, ErrInvalidSession
	}

	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, &s.key)
	if !ok {
		return nil, ErrInvalidSession
	}

	var sess Session
	if err := json.Unmarshal(plain, &sess); err != nil || sess.IDToken == "" {
		return nil, ErrInvalidSession
	}
	if now.Unix() >= sess.ExpiresAt {
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

// Start seals a session for login and sets the cookie. The session ends
// at the configured TTL or the token expiry, whichever comes first.
func (s *Sealer) Start(w http.ResponseWriter, login *Login) error {
	expiresAt := time.Now().Add(s.ttl)
	if !login.ExpiresAt.IsZero() && login.ExpiresAt.Before(expiresAt) {
		expiresAt = login.ExpiresAt
	}

	value, err := s.Seal(Session{IDToken: login.IDToken, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Token returns the ID token from the request's session cookie, or ""
func (s *Sealer) Token(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	sess, err := s.Open(cookie.Value, time.Now())
	if err != nil {
		return ""
	}
	return sess.IDToken
}

// Clear removes the session cookie
func (s *Sealer) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
	})
}
