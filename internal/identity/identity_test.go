package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testSecret = "test-secret-test-secret-test-secret"

func TestHMACVerifier_RoundTrip(t *testing.T) {
	v := NewHMACVerifier(testSecret, "outreach-test", "console")

	token, err := v.Sign("uid-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	p, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if p.UID != "uid-1" {
		t.Errorf("UID = %q, want uid-1", p.UID)
	}
	if p.Email != "a@example.com" {
		t.Errorf("Email = %q", p.Email)
	}
	if p.Claims["uid"] != "uid-1" {
		t.Errorf("Claims[uid] = %v", p.Claims["uid"])
	}
}

func TestHMACVerifier_Rejects(t *testing.T) {
	v := NewHMACVerifier(testSecret, "", "")
	other := NewHMACVerifier("another-secret-another-secret-xx", "", "")

	expired, _ := v.Sign("uid-1", "", -time.Minute)
	foreign, _ := other.Sign("uid-1", "", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong secret", foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tt.token); err == nil {
				t.Error("Verify() expected error")
			}
		})
	}
}

func TestGate_ResolveWhenReady(t *testing.T) {
	v := NewHMACVerifier(testSecret, "", "")
	g := NewGate(time.Second, nil, testLogger())
	g.SetVerifier(v)

	token, _ := v.Sign("uid-1", "", time.Hour)
	p, err := g.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.UID != "uid-1" {
		t.Errorf("UID = %q", p.UID)
	}
	if !g.Ready() {
		t.Error("Ready() = false after SetVerifier")
	}
}

func TestGate_EmptyToken(t *testing.T) {
	g := NewGate(time.Second, nil, testLogger())
	g.SetVerifier(NewHMACVerifier(testSecret, "", ""))

	if _, err := g.Resolve(context.Background(), ""); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("Resolve(\"\") error = %v, want ErrNotSignedIn", err)
	}
}

func TestGate_TimeoutYieldsNotSignedIn(t *testing.T) {
	g := NewGate(50*time.Millisecond, nil, testLogger())

	release := make(chan struct{})
	defer close(release)
	g.Start(context.Background(), func(ctx context.Context) (Verifier, error) {
		<-release
		return NewHMACVerifier(testSecret, "", ""), nil
	})

	start := time.Now()
	_, err := g.Resolve(context.Background(), "some-token")
	if !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("Resolve() error = %v, want ErrNotSignedIn", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Resolve() waited %v, want bounded by timeout", elapsed)
	}
	if g.Ready() {
		t.Error("Ready() = true before initialisation finished")
	}
}

func TestGate_InitFailure(t *testing.T) {
	g := NewGate(time.Second, nil, testLogger())
	g.Start(context.Background(), func(ctx context.Context) (Verifier, error) {
		return nil, errors.New("discovery failed")
	})

	_, err := g.Resolve(context.Background(), "some-token")
	if !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("Resolve() error = %v, want ErrNotSignedIn", err)
	}
}

type countingVerifier struct {
	inner Verifier
	calls int
}

func (c *countingVerifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	c.calls++
	return c.inner.Verify(ctx, raw)
}

func TestGate_CachesPrincipal(t *testing.T) {
	hv := NewHMACVerifier(testSecret, "", "")
	cv := &countingVerifier{inner: hv}
	g := NewGate(time.Second, NewMemoryCache(), testLogger())
	g.SetVerifier(cv)

	token, _ := hv.Sign("uid-1", "", time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := g.Resolve(context.Background(), token); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if cv.calls != 1 {
		t.Errorf("verifier called %d times, want 1", cv.calls)
	}
}

func TestGate_SourceReResolves(t *testing.T) {
	hv := NewHMACVerifier(testSecret, "", "")
	cv := &countingVerifier{inner: hv}
	g := NewGate(time.Second, nil, testLogger())
	g.SetVerifier(cv)

	src := g.Source("bad-token")
	for i := 0; i < 2; i++ {
		if _, err := src.Principal(context.Background()); !errors.Is(err, ErrNotSignedIn) {
			t.Fatalf("Principal() error = %v", err)
		}
	}
	if cv.calls != 2 {
		t.Errorf("verifier called %d times, want 2", cv.calls)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "k", &Principal{UID: "u"}, time.Minute)
	if _, ok := c.Get(context.Background(), "k"); !ok {
		t.Fatal("Get() miss for fresh entry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("Get() hit for expired entry")
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCache(client, "", testLogger())
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("Get() hit on empty cache")
	}

	c.Set(ctx, "k", &Principal{UID: "u1", Email: "a@example.com"}, time.Minute)
	p, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() miss after Set()")
	}
	if p.UID != "u1" || p.Email != "a@example.com" {
		t.Errorf("Get() = %+v", p)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get() hit after ttl elapsed")
	}
}

func TestPrincipal_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		p    *Principal
		want bool
	}{
		{"nil", nil, true},
		{"no expiry", &Principal{UID: "u"}, false},
		{"future", &Principal{UID: "u", ExpiresAt: now.Add(time.Minute)}, false},
		{"past", &Principal{UID: "u", ExpiresAt: now.Add(-time.Minute)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
