package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/foxzi/outreach/internal/credential"
	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/mailcheck"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/segment"
	"github.com/foxzi/outreach/internal/web/auth"
	"github.com/foxzi/outreach/internal/web/config"
	"github.com/foxzi/outreach/internal/web/db"
	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/handlers"
	"github.com/foxzi/outreach/internal/web/middleware"
	"github.com/foxzi/outreach/internal/web/repository"
	"github.com/foxzi/outreach/internal/web/static"
	"github.com/foxzi/outreach/internal/web/views"
	"github.com/foxzi/outreach/internal/web/worker"
)

type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *docstore.Store
	db      *db.DB
	redis   *redis.Client
	gate    *identity.Gate
	oidc    *auth.OIDCProvider
	limiter middleware.Limiter
	http    *http.Server
	worker  *worker.Worker

	metricsServer *metrics.Server
	collector     *metrics.Collector
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// Document store
	store, err := docstore.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}

	// Audit database
	auditDB, err := db.New(cfg.Database.AuditPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize audit database: %w", err)
	}
	if err := auditDB.Migrate(); err != nil {
		store.Close()
		auditDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		db:     auditDB,
	}

	handler, err := s.setup(ctx)
	if err != nil {
		s.close()
		return nil, err
	}

	s.http = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setup builds the identity gate, services and routes
func (s *Server) setup(ctx context.Context) (http.Handler, error) {
	cfg := s.cfg

	viewEngine, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	// Principal cache and verify rate limits
	var cache identity.Cache
	limits := middleware.Limits{PerMinute: cfg.Verify.RateLimitMinute, PerHour: cfg.Verify.RateLimitHour}
	if cfg.Cache.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		cache = identity.NewRedisCache(s.redis, cfg.Cache.Prefix, s.logger)
		s.limiter = middleware.NewRedisLimiter(s.redis, cfg.Cache.Prefix, limits)
		s.logger.Info("principal cache and rate limits use redis", "addr", cfg.Cache.RedisAddr)
	} else {
		cache = identity.NewMemoryCache()
		s.limiter = middleware.NewMemoryLimiter(limits)
	}

	s.gate = identity.NewGate(cfg.Auth.GateTimeout, cache, s.logger)

	var local *auth.LocalProvider
	switch {
	case cfg.Auth.Local.Enabled:
		local = auth.NewLocalProvider(&cfg.Auth.Local, cfg.Auth.SessionTTL)
		s.gate.SetVerifier(local.Verifier())
		s.logger.Info("local authentication enabled", "users", len(cfg.Auth.Local.Users))
	case cfg.Auth.OIDC.Enabled:
		// provider discovery runs in the background; requests wait on the gate
		oidcCfg := cfg.Auth.OIDC
		s.gate.Start(ctx, func(ctx context.Context) (identity.Verifier, error) {
			return identity.NewOIDCVerifier(ctx, oidcCfg.IssuerURL, oidcCfg.ClientID)
		})
		s.oidc, err = auth.NewOIDCProvider(ctx, &cfg.Auth.OIDC)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
		}
		s.logger.Info("OIDC provider initialized", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	// Repositories and services
	auditRepo := repository.NewAuditRepository(s.db.DB)
	segments := segment.NewService(repository.NewSegmentRepository(s.store), s.logger)
	credentials := credential.NewService(repository.NewCredentialRepository(s.store), s.logger)
	checker := mailcheck.NewChecker(mailcheck.Config{
		Addr:     cfg.Mail.RelayAddr,
		Security: cfg.Mail.Security,
		Timeout:  cfg.Mail.Timeout,
	}, s.logger)

	sealer := auth.NewSealer(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, cfg.Server.TLS.Enabled)

	h := handlers.New(cfg, s.logger, handlers.Deps{
		Views:       viewEngine,
		Sealer:      sealer,
		OIDC:        s.oidc,
		Local:       local,
		Gate:        s.gate,
		Segments:    segments,
		Credentials: credentials,
		History:     repository.NewHistoryRepository(s.store),
		Audit:       auditRepo,
		MailCheck:   checker,
	})

	s.worker = worker.New(s.logger)
	s.worker.Add(worker.NewAuditPruner(auditRepo, cfg.Audit.Retention, s.logger).Job(cfg.Audit.CleanupInterval))

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)

		s.collector, err = metrics.NewCollector(s.store.DB(), m, s.store, s.store.Path(), cfg.Metrics.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics collector: %w", err)
		}
		metrics.SetGlobalCollector(s.collector)

		s.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, s.logger)
	}

	return s.routes(h, sealer), nil
}

func (s *Server) routes(h *handlers.Handlers, sealer *auth.Sealer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.RealIP(s.cfg.Server.TrustedProxies, s.logger))
	r.Use(middleware.Logger(s.logger))
	r.Use(metrics.HTTPMiddleware)
	r.Use(middleware.IPFilter(s.cfg.Server.AllowedIPs, s.logger))
	r.Use(middleware.MethodOverride)

	// Health check
	r.Get("/health", h.Health)

	// Static files (embedded)
	r.Handle("/static/*", http.StripPrefix("/static/", static.Handler()))

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.LoginPage)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/oidc/login", h.OIDCLogin)
		r.Get("/callback", h.OIDCCallback)
	})

	// Token verification for external callers
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Verify.CORSOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         300,
		}))
		r.Use(middleware.RateLimit(s.limiter, s.logger))
		r.Post("/verify", h.Verify)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.gate, sealer.Token, s.logger))

		r.Get("/", h.Dashboard)

		r.Route("/segments", func(r chi.Router) {
			r.Get("/", h.SegmentList)
			r.Post("/", h.SegmentSave)
			r.Get("/new", h.SegmentNew)
			r.Get("/preview", h.SegmentPreview)
			r.Post("/{id}", h.SegmentSave)
			r.Put("/{id}", h.SegmentSave)
			r.Get("/{id}/edit", h.SegmentEdit)
			r.Post("/{id}/toggle", h.SegmentToggle)
			r.Post("/{id}/move", h.SegmentMove)
			r.Get("/{id}/delete", h.SegmentDeleteConfirm)
			r.Post("/{id}/delete", h.SegmentDelete)
			r.Delete("/{id}", h.SegmentDelete)
		})

		r.Get("/history", h.History)
		r.Get("/history/export.csv", h.HistoryExportCSV)
		r.Get("/history/export.xlsx", h.HistoryExportXLSX)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/rpa", h.RPAAccountList)
			r.Post("/rpa", h.RPAAccountSave)
			r.Get("/rpa/new", h.RPAAccountNew)
			r.Post("/rpa/{id}", h.RPAAccountSave)
			r.Get("/rpa/{id}/edit", h.RPAAccountEdit)
			r.Get("/rpa/{id}/delete", h.RPAAccountDeleteConfirm)
			r.Post("/rpa/{id}/delete", h.RPAAccountDelete)

			r.Get("/mail", h.MailSettings)
			r.Post("/mail", h.MailSettingsSave)
			r.Post("/mail/delete", h.MailSettingsDelete)
			r.Post("/mail/check", h.MailSettingsCheck)

			r.Get("/api", h.APISettings)
			r.Post("/api", h.APISettingsSave)
			r.Post("/api/delete", h.APISettingsDelete)
		})

		r.Get("/audit", h.AuditLog)
	})

	return r
}

func (s *Server) Run(ctx context.Context) error {
	// Start background work
	s.worker.Start()
	if s.collector != nil {
		s.collector.Start(ctx)
	}

	errCh := make(chan error, 2)

	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("starting web server", "addr", s.cfg.Server.ListenAddr)
		var err error
		if s.cfg.Server.TLS.Enabled {
			err = s.http.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	s.shutdown()
	return runErr
}

func (s *Server) shutdown() {
	s.worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if s.collector != nil {
		if err := s.collector.Stop(); err != nil {
			s.logger.Error("failed to persist metrics", "error", err)
		}
	}
	s.close()
}

func (s *Server) close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	s.db.Close()
	s.store.Close()
}
