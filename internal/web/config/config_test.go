package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
auth:
  session_secret: "` + secret + `"
  oidc:
    enabled: true
    client_id: console
    client_secret: s
    issuer_url: https://securetoken.google.com/demo
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8088" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Auth.GateTimeout != 3*time.Second {
		t.Errorf("GateTimeout = %v, want 3s", cfg.Auth.GateTimeout)
	}
	if cfg.History.Limit != 100 || cfg.History.PageSize != 10 || cfg.History.Timezone != "Asia/Tokyo" {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.Mail.Security != "starttls" {
		t.Errorf("Mail.Security = %q", cfg.Mail.Security)
	}
	if len(cfg.Auth.OIDC.Scopes) != 3 {
		t.Errorf("Scopes = %v", cfg.Auth.OIDC.Scopes)
	}
	loc, err := cfg.History.Location()
	if err != nil || loc.String() != "Asia/Tokyo" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestParse_TrustedProxies(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  allowed_ips: ["10.0.0.0/8"]
  trusted_proxies: ["127.0.0.1", "172.16.0.0/12"]
auth:
  session_secret: "` + secret + `"
  oidc:
    enabled: true
    client_id: console
    client_secret: s
    issuer_url: https://securetoken.google.com/demo
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "172.16.0.0/12" {
		t.Errorf("TrustedProxies = %v", cfg.Server.TrustedProxies)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("OUTREACH_TEST_SECRET", secret)
	t.Setenv("OUTREACH_TEST_JWT", secret+"x")

	cfg, err := Parse([]byte(`
auth:
  session_secret: ${OUTREACH_TEST_SECRET}
  local:
    enabled: true
    jwt_secret: ${OUTREACH_TEST_JWT}
    users:
      - uid: u1
        email: a@example.com
        password_hash: "$2a$10$abcdefghijklmnopqrstuv"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Auth.SessionSecret != secret {
		t.Errorf("SessionSecret = %q", cfg.Auth.SessionSecret)
	}
	if got := cfg.Auth.Local.Users[0].PasswordHash; got != "$2a$10$abcdefghijklmnopqrstuv" {
		t.Errorf("PasswordHash = %q, want it unexpanded", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing secret",
			yaml: "auth:\n  local:\n    enabled: true\n",
			want: "session_secret is required",
		},
		{
			name: "short secret",
			yaml: "auth:\n  session_secret: short\n",
			want: "at least 32",
		},
		{
			name: "no auth method",
			yaml: "auth:\n  session_secret: " + secret + "\n",
			want: "one auth method",
		},
		{
			name: "both methods",
			yaml: "auth:\n  session_secret: " + secret + "\n  local:\n    enabled: true\n    jwt_secret: " + secret + "\n  oidc:\n    enabled: true\n",
			want: "cannot both",
		},
		{
			name: "oidc without client",
			yaml: "auth:\n  session_secret: " + secret + "\n  oidc:\n    enabled: true\n",
			want: "client_id",
		},
		{
			name: "local user incomplete",
			yaml: "auth:\n  session_secret: " + secret + "\n  local:\n    enabled: true\n    jwt_secret: " + secret + "\n    users:\n      - uid: u1\n",
			want: "users[0]",
		},
		{
			name: "bad timezone",
			yaml: "auth:\n  session_secret: " + secret + "\n  local:\n    enabled: true\n    jwt_secret: " + secret + "\nhistory:\n  timezone: Mars/Olympus\n",
			want: "history.timezone",
		},
		{
			name: "bad mail security",
			yaml: "auth:\n  session_secret: " + secret + "\n  local:\n    enabled: true\n    jwt_secret: " + secret + "\nmail:\n  security: ssl\n",
			want: "mail.security",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "auth:\n  session_secret: " + secret + "\n  local:\n    enabled: true\n    jwt_secret: " + secret + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Local.Enabled {
		t.Error("Local.Enabled = false")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() of a missing file expected error")
	}
}
