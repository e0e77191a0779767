package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/outreach/internal/metrics"
)

// DefaultGateTimeout bounds how long a request waits for the verifier
const DefaultGateTimeout = 3 * time.Second

// Gate resolves principals once the verifier has finished initialising.
// Initialisation (provider discovery) happens in the background; callers
// wait for it at most the configured timeout.
type Gate struct {
	ready    chan struct{}
	once     sync.Once
	verifier Verifier
	initErr  error

	timeout time.Duration
	cache   Cache
	logger  *slog.Logger
	now     func() time.Time
}

// NewGate creates a gate; a nil cache keeps principals in memory
func NewGate(timeout time.Duration, cache Cache, logger *slog.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultGateTimeout
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Gate{
		ready:   make(chan struct{}),
		timeout: timeout,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// Start runs init in the background. Only the first call has an effect.
func (g *Gate) Start(ctx context.Context, init func(ctx context.Context) (Verifier, error)) {
	go func() {
		v, err := init(ctx)
		if err != nil {
			g.logger.Error("identity verifier initialisation failed", "error", err)
		} else {
			g.logger.Info("identity verifier ready")
		}
		g.finish(v, err)
	}()
}

// SetVerifier makes the gate ready with v immediately
func (g *Gate) SetVerifier(v Verifier) {
	g.finish(v, nil)
}

func (g *Gate) finish(v Verifier, err error) {
	g.once.Do(func() {
		g.verifier = v
		g.initErr = err
		close(g.ready)
	})
}

// Ready reports whether initialisation has completed successfully
func (g *Gate) Ready() bool {
	select {
	case <-g.ready:
		return g.initErr == nil
	default:
		return false
	}
}

func (g *Gate) wait(ctx context.Context) error {
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case <-g.ready:
		return g.initErr
	case <-timer.C:
		return errGateTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Verify waits for the verifier and checks rawToken, returning the
// verification error unchanged
func (g *Gate) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	p, err := g.verifier.Verify(ctx, rawToken)
	metrics.IncTokenVerification(metrics.Result(err))
	return p, err
}

// Resolve returns the principal for rawToken. Any failure, including
// the verifier not becoming ready within the timeout, is ErrNotSignedIn.
func (g *Gate) Resolve(ctx context.Context, rawToken string) (*Principal, error) {
	if rawToken == "" {
		return nil, ErrNotSignedIn
	}

	key := cacheKey(rawToken)
	now := g.now()
	if p, ok := g.cache.Get(ctx, key); ok && !p.Expired(now) {
		return p, nil
	}

	p, err := g.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSignedIn, err)
	}
	if p.Expired(now) {
		return nil, ErrNotSignedIn
	}

	g.cache.Set(ctx, key, p, p.ExpiresAt.Sub(now))
	return p, nil
}

// Source returns a Source that re-resolves rawToken on every call
func (g *Gate) Source(rawToken string) Source {
	return SourceFunc(func(ctx context.Context) (*Principal, error) {
		return g.Resolve(ctx, rawToken)
	})
}
