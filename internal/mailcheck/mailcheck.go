// Package mailcheck probes a mail relay with saved credentials
package mailcheck

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/foxzi/outreach/internal/metrics"
)

// Connection security modes
const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

var (
	ErrAuthFailed     = errors.New("relay rejected the credentials")
	ErrAuthNotOffered = errors.New("relay does not offer AUTH PLAIN")
)

// Config describes the relay to probe
type Config struct {
	Addr      string // host:port
	Security  string
	Timeout   time.Duration
	TLSConfig *tls.Config // nil uses the relay host name
}

// Checker logs in to the relay and quits without sending anything
type Checker struct {
	cfg    Config
	logger *slog.Logger
}

func NewChecker(cfg Config, logger *slog.Logger) *Checker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Security == "" {
		cfg.Security = SecurityStartTLS
	}
	return &Checker{cfg: cfg, logger: logger}
}

// Check authenticates as username with AUTH PLAIN
func (c *Checker) Check(ctx context.Context, username, password string) error {
	err := c.check(ctx, username, password)
	metrics.IncMailCheck(metrics.Result(err))
	if err != nil {
		c.logger.Warn("mail relay check failed", "addr", c.cfg.Addr, "username", username, "error", err)
		return err
	}
	c.logger.Info("mail relay check passed", "addr", c.cfg.Addr, "username", username)
	return nil
}

func (c *Checker) check(ctx context.Context, username, password string) error {
	host, _, err := net.SplitHostPort(c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("invalid relay address %q: %w", c.cfg.Addr, err)
	}

	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("connection failed to %s: %w", c.cfg.Addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.Timeout)
	}
	conn.SetDeadline(deadline)

	tlsConfig := c.cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}

	var client *smtp.Client
	switch c.cfg.Security {
	case SecurityTLS:
		client = smtp.NewClient(tls.Client(conn, tlsConfig))
	case SecurityNone:
		client = smtp.NewClient(conn)
	default:
		client, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			conn.Close()
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	defer client.Close()

	if !client.SupportsAuth(sasl.Plain) {
		return ErrAuthNotOffered
	}

	if err := client.Auth(sasl.NewPlainClient("", username, password)); err != nil {
		var serr *smtp.SMTPError
		if errors.As(err, &serr) && serr.Code == 535 {
			return fmt.Errorf("%w: %s", ErrAuthFailed, serr.Message)
		}
		return fmt.Errorf("AUTH failed: %w", err)
	}

	client.Quit()
	return nil
}
