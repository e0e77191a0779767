package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultAddr = "127.0.0.1:9090"
	defaultPath = "/metrics"
)

// Server exposes the registry for scraping on its own listener
type Server struct {
	metrics *Metrics
	addr    string
	path    string
	allow   AllowList
	logger  *slog.Logger

	httpServer *http.Server
}

func NewServer(m *Metrics, addr, path string, allowedIPs []string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = defaultAddr
	}
	if path == "" {
		path = defaultPath
	}

	s := &Server{
		metrics: m,
		addr:    addr,
		path:    path,
		allow:   ParseAllowList(allowedIPs, logger),
		logger:  logger,
	}
	if len(s.allow) > 0 {
		logger.Info("metrics scrape restricted", "networks", len(s.allow))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	scrape := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	})
	r.With(s.allow.Middleware(PeerAddr, s.logger)).Handle(s.path, scrape)

	// probes come from the load balancer, not from the scrape networks
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	return r
}

func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("metrics listening", "addr", s.addr, "path", s.path)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
