// Package config loads the service configuration: a YAML file with
// environment-variable overrides applied on top. Secrets (master key, state
// secret, client secrets, admin gate secret) normally arrive via env.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// redis | memory
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Security struct {
		// MasterKey is base64(32 bytes); AES and HMAC keys derive from it.
		MasterKey            string   `yaml:"master_key"`
		StateTTL             string   `yaml:"state_ttl"`
		TokenExpiryBuffer    string   `yaml:"token_expiry_buffer"`
		AllowedRedirectHosts []string `yaml:"allowed_redirect_hosts"`
	} `yaml:"security"`

	Admin struct {
		Enforce bool `yaml:"enforce"`
		// Secret verifies the HMAC-signed admin bearer token.
		Secret string `yaml:"secret"`
	} `yaml:"admin"`

	Providers struct {
		Gmail   ProviderDefaults `yaml:"gmail"`
		Outlook ProviderDefaults `yaml:"outlook"`
	} `yaml:"providers"`

	Rate struct {
		Enabled   bool      `yaml:"enabled"`
		Authorize RateLimit `yaml:"authorize"`
		Callback  RateLimit `yaml:"callback"`
		Refresh   RateLimit `yaml:"refresh"`
	} `yaml:"rate"`
}

// ProviderDefaults is the process-wide fallback client configuration, used
// only when the event has not saved its own credentials.
type ProviderDefaults struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

type RateLimit struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// Load reads path, applies defaults and env overrides, then validates.
// A missing file is not an error: everything can come from the environment.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Security.StateTTL == "" {
		c.Security.StateTTL = "10m"
	}
	if c.Security.TokenExpiryBuffer == "" {
		c.Security.TokenExpiryBuffer = "5m"
	}
	if c.Rate.Authorize.Limit == 0 {
		c.Rate.Authorize.Limit = 10
	}
	if c.Rate.Authorize.Window == "" {
		c.Rate.Authorize.Window = "1m"
	}
	if c.Rate.Callback.Limit == 0 {
		c.Rate.Callback.Limit = 15
	}
	if c.Rate.Callback.Window == "" {
		c.Rate.Callback.Window = "1m"
	}
	if c.Rate.Refresh.Limit == 0 {
		c.Rate.Refresh.Limit = 20
	}
	if c.Rate.Refresh.Window == "" {
		c.Rate.Refresh.Window = "1m"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Security.MasterKey != "" {
		if _, err := c.MasterKeyBytes(); err != nil {
			return err
		}
	} else if strings.EqualFold(c.App.Env, "prod") {
		return fmt.Errorf("config: security.master_key is required in prod")
	}
	if c.Admin.Enforce && strings.TrimSpace(c.Admin.Secret) == "" {
		return fmt.Errorf("config: admin.secret is required when admin.enforce is set")
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" && strings.EqualFold(c.App.Env, "prod") {
		return fmt.Errorf("config: storage.dsn is required in prod")
	}
	for _, w := range []string{
		c.Security.StateTTL,
		c.Security.TokenExpiryBuffer,
		c.Rate.Authorize.Window,
		c.Rate.Callback.Window,
		c.Rate.Refresh.Window,
	} {
		if w != "" {
			if _, err := time.ParseDuration(w); err != nil {
				return fmt.Errorf("config: bad duration %q: %w", w, err)
			}
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return err
		}
	}
	return nil
}

// MasterKeyBytes decodes the base64 master key and enforces the 32-byte length.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Security.MasterKey))
	if err != nil {
		return nil, fmt.Errorf("config: security.master_key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: security.master_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// StateTTLDuration returns the parsed state TTL.
func (c *Config) StateTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.Security.StateTTL)
	return d
}

// TokenExpiryBufferDuration returns the parsed expiry buffer.
func (c *Config) TokenExpiryBufferDuration() time.Duration {
	d, _ := time.ParseDuration(c.Security.TokenExpiryBuffer)
	return d
}

// WindowDuration returns the parsed rate-limit window.
func (r RateLimit) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(r.Window)
	return d
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides layers environment variables over the YAML values.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}

	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	if v, ok := getEnvStr("MASTER_KEY"); ok {
		c.Security.MasterKey = v
	}
	if v, ok := getEnvStr("STATE_TTL"); ok {
		c.Security.StateTTL = v
	}
	if v, ok := getEnvStr("TOKEN_EXPIRY_BUFFER"); ok {
		c.Security.TokenExpiryBuffer = v
	}
	if v, ok := getEnvCSV("ALLOWED_REDIRECT_HOSTS"); ok {
		c.Security.AllowedRedirectHosts = v
	}

	if v, ok := getEnvBool("ADMIN_ENFORCE"); ok {
		c.Admin.Enforce = v
	}
	if v, ok := getEnvStr("ADMIN_SECRET"); ok {
		c.Admin.Secret = v
	}

	if v, ok := getEnvStr("GMAIL_CLIENT_ID"); ok {
		c.Providers.Gmail.ClientID = v
	}
	if v, ok := getEnvStr("GMAIL_CLIENT_SECRET"); ok {
		c.Providers.Gmail.ClientSecret = v
	}
	if v, ok := getEnvStr("GMAIL_REDIRECT_URI"); ok {
		c.Providers.Gmail.RedirectURI = v
	}
	if v, ok := getEnvStr("OUTLOOK_CLIENT_ID"); ok {
		c.Providers.Outlook.ClientID = v
	}
	if v, ok := getEnvStr("OUTLOOK_CLIENT_SECRET"); ok {
		c.Providers.Outlook.ClientSecret = v
	}
	if v, ok := getEnvStr("OUTLOOK_REDIRECT_URI"); ok {
		c.Providers.Outlook.RedirectURI = v
	}

	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
}
