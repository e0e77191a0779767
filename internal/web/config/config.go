package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Cache    CacheConfig    `yaml:"cache"`
	Mail     MailConfig     `yaml:"mail"`
	History  HistoryConfig  `yaml:"history"`
	Verify   VerifyConfig   `yaml:"verify"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string    `yaml:"listen_addr"`
	TLS        TLSConfig `yaml:"tls"`
	AllowedIPs []string  `yaml:"allowed_ips"` // empty allows all
	// TrustedProxies may set X-Forwarded-For and X-Real-IP; empty trusts none
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Path      string `yaml:"path"`       // document store (bbolt)
	AuditPath string `yaml:"audit_path"` // audit log (sqlite)
}

type AuthConfig struct {
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	GateTimeout   time.Duration `yaml:"gate_timeout"`
	Local         LocalConfig   `yaml:"local"`
	OIDC          OIDCConfig    `yaml:"oidc"`
}

// LocalConfig signs in configured users with HS256 tokens. Used with
// identity-provider emulators and in development.
type LocalConfig struct {
	Enabled   bool        `yaml:"enabled"`
	JWTSecret string      `yaml:"jwt_secret"`
	Issuer    string      `yaml:"issuer"`
	Audience  string      `yaml:"audience"`
	Users     []LocalUser `yaml:"users"`
}

type LocalUser struct {
	UID          string `yaml:"uid"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

type OIDCConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Provider      string   `yaml:"provider"`
	ClientID      string   `yaml:"client_id"`
	ClientSecret  string   `yaml:"client_secret"`
	IssuerURL     string   `yaml:"issuer_url"`
	RedirectURL   string   `yaml:"redirect_url"`
	Scopes        []string `yaml:"scopes"`
	AllowedGroups []string `yaml:"allowed_groups"`
}

type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

type MailConfig struct {
	RelayAddr string        `yaml:"relay_addr"`
	Security  string        `yaml:"security"`
	Timeout   time.Duration `yaml:"timeout"`
}

type HistoryConfig struct {
	Limit    int    `yaml:"limit"`
	PageSize int    `yaml:"page_size"`
	Timezone string `yaml:"timezone"`
}

// Location returns the display zone for history and dashboard times
func (h HistoryConfig) Location() (*time.Location, error) {
	return time.LoadLocation(h.Timezone)
}

type VerifyConfig struct {
	RateLimitMinute int      `yaml:"rate_limit_minute"`
	RateLimitHour   int      `yaml:"rate_limit_hour"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

type AuditConfig struct {
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // negative disables the background cleanup
}

type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`
	Path          string        `yaml:"path"`
	AllowedIPs    []string      `yaml:"allowed_ips"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML file at path. Variables from a .env file next to
// the working directory are loaded first and ${VAR} references expanded.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// envRef matches ${VAR}; bare $ is left alone so bcrypt hashes survive
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Parse decodes, defaults and validates a configuration
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8088"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/outreach/store.db"
	}
	if cfg.Database.AuditPath == "" {
		cfg.Database.AuditPath = "/var/lib/outreach/audit.db"
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Auth.GateTimeout == 0 {
		cfg.Auth.GateTimeout = 3 * time.Second
	}
	if len(cfg.Auth.OIDC.Scopes) == 0 {
		cfg.Auth.OIDC.Scopes = []string{"openid", "profile", "email"}
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "outreach:"
	}
	if cfg.Mail.RelayAddr == "" {
		cfg.Mail.RelayAddr = "smtp.gmail.com:587"
	}
	if cfg.Mail.Security == "" {
		cfg.Mail.Security = "starttls"
	}
	if cfg.Mail.Timeout == 0 {
		cfg.Mail.Timeout = 15 * time.Second
	}
	if cfg.History.Limit == 0 {
		cfg.History.Limit = 100
	}
	if cfg.History.PageSize == 0 {
		cfg.History.PageSize = 10
	}
	if cfg.History.Timezone == "" {
		cfg.History.Timezone = "Asia/Tokyo"
	}
	if cfg.Verify.RateLimitMinute == 0 {
		cfg.Verify.RateLimitMinute = 60
	}
	if len(cfg.Verify.CORSOrigins) == 0 {
		cfg.Verify.CORSOrigins = []string{"*"}
	}
	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = 90 * 24 * time.Hour
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = 24 * time.Hour
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = "127.0.0.1:9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.FlushInterval == 0 {
		cfg.Metrics.FlushInterval = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}
}

func validate(cfg *Config) error {
	if cfg.Auth.SessionSecret == "" {
		return fmt.Errorf("auth.session_secret is required")
	}
	if len(cfg.Auth.SessionSecret) < 32 {
		return fmt.Errorf("auth.session_secret must be at least 32 characters")
	}
	if !cfg.Auth.Local.Enabled && !cfg.Auth.OIDC.Enabled {
		return fmt.Errorf("one auth method must be enabled (local or OIDC)")
	}
	if cfg.Auth.Local.Enabled && cfg.Auth.OIDC.Enabled {
		return fmt.Errorf("auth.local and auth.oidc cannot both be enabled")
	}
	if cfg.Auth.Local.Enabled {
		if len(cfg.Auth.Local.JWTSecret) < 32 {
			return fmt.Errorf("auth.local.jwt_secret must be at least 32 characters")
		}
		for i, u := range cfg.Auth.Local.Users {
			if u.UID == "" || u.Email == "" || u.PasswordHash == "" {
				return fmt.Errorf("auth.local.users[%d]: uid, email and password_hash are required", i)
			}
		}
	}
	if cfg.Auth.OIDC.Enabled {
		if cfg.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.client_secret is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
	}
	switch cfg.Mail.Security {
	case "starttls", "tls", "none":
	default:
		return fmt.Errorf("mail.security must be starttls, tls or none")
	}
	if _, err := cfg.History.Location(); err != nil {
		return fmt.Errorf("history.timezone: %w", err)
	}
	if cfg.History.Limit < 0 || cfg.History.PageSize < 0 {
		return fmt.Errorf("history.limit and history.page_size must be positive")
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	if cfg.Server.TLS.Enabled && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	return nil
}
