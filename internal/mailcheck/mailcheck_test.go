package mailcheck

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type backend struct {
	users map[string]string
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{users: b.users}, nil
}

type session struct {
	users map[string]string
}

func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if want, ok := s.users[username]; !ok || want != password {
			return smtp.ErrAuthFailed
		}
		return nil
	}), nil
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error { return nil }
func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error   { return nil }
func (s *session) Data(r io.Reader) error                         { return nil }
func (s *session) Reset()                                         {}
func (s *session) Logout() error                                  { return nil }

func startRelay(t *testing.T) string {
	t.Helper()

	srv := smtp.NewServer(&backend{users: map[string]string{"ops@example.com": "abcdabcdabcdabcd"}})
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })
	return l.Addr().String()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheck(t *testing.T) {
	addr := startRelay(t)
	c := NewChecker(Config{Addr: addr, Security: SecurityNone}, testLogger())

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid", "ops@example.com", "abcdabcdabcdabcd", nil},
		{"wrong password", "ops@example.com", "wrongwrongwrongw", ErrAuthFailed},
		{"unknown user", "who@example.com", "abcdabcdabcdabcd", ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Check(context.Background(), tt.username, tt.password)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Check() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheck_StartTLSNotOffered(t *testing.T) {
	addr := startRelay(t)
	c := NewChecker(Config{Addr: addr}, testLogger())

	if err := c.Check(context.Background(), "ops@example.com", "abcdabcdabcdabcd"); err == nil {
		t.Fatal("Check() expected error when the relay has no STARTTLS")
	}
}

func TestCheck_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	c := NewChecker(Config{Addr: addr, Security: SecurityNone}, testLogger())
	if err := c.Check(context.Background(), "ops@example.com", "x"); err == nil {
		t.Fatal("Check() expected connection error")
	}
}

func TestNewChecker_Defaults(t *testing.T) {
	c := NewChecker(Config{Addr: "smtp.example.com:587"}, testLogger())
	if c.cfg.Security != SecurityStartTLS {
		t.Errorf("Security = %q, want %q", c.cfg.Security, SecurityStartTLS)
	}
	if c.cfg.Timeout == 0 {
		t.Error("Timeout not defaulted")
	}
}
