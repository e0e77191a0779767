package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks a raw ID token and returns its principal
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

// OIDCVerifier verifies ID tokens against an OIDC issuer's published keys.
// Firebase Auth tokens verify with issuer
// https://securetoken.google.com/<project> and the project id as client id.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier performs provider discovery and returns a verifier
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}

	claims := map[string]any{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return principalFromClaims(token.Subject, token.Expiry, claims), nil
}

// HMACVerifier verifies HS256 tokens signed with a shared secret.
// Used with local identity emulators and in tests.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewHMACVerifier(secret, issuer, audience string) *HMACVerifier {
	return &HMACVerifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

func (v *HMACVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}

	subject, _ := claims.GetSubject()
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("failed to verify id_token: missing exp")
	}

	p := principalFromClaims(subject, exp.Time, claims)
	if p.UID == "" {
		return nil, errors.New("failed to verify id_token: missing subject")
	}
	return p, nil
}

// Sign mints a token this verifier accepts
func (v *HMACVerifier) Sign(uid, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   uid,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if v.audience != "" {
		claims["aud"] = v.audience
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
