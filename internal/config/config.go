// Package config loads gateway configuration from GATEWAY_ environment
// variables, an optional YAML file and command-line flags, all through viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/confusion-labs/gateway/internal/auth"
	"github.com/confusion-labs/gateway/internal/middleware"
	"github.com/confusion-labs/gateway/internal/origin"
	"github.com/confusion-labs/gateway/internal/provider"
	"github.com/confusion-labs/gateway/internal/ratelimit"
)

// EnvPrefix is prepended to every environment variable, e.g. GATEWAY_TOKEN_SECRET.
const EnvPrefix = "GATEWAY"

// Config holds the application configuration. It is read once at startup.
type Config struct {
	// Database connection string (DSN). SQLite file/memory DSNs or postgres:// URLs.
	DatabaseURL string

	// Maximum database connection pool size (postgres only).
	MaxDBConnections int

	// Plain HTTP bind address (host:port).
	ServerAddr string

	// TLS bind address, used only when both certificate paths are set.
	TLSAddr     string
	TLSCertFile string
	TLSKeyFile  string

	Debug     bool
	LogLevel  string
	LogFormat string

	// TrustedProxies are the peers whose X-Forwarded-For / X-Real-IP headers
	// are honoured. Empty means the socket peer is always the client.
	TrustedProxies []netip.Prefix

	Token     TokenConfig
	CORS      CORSConfig
	Provider  ProviderConfig
	RateLimit RateLimitConfig
}

// TokenConfig configures bearer token issuance.
type TokenConfig struct {
	// Secret is the HMAC signing key. Required by serve, at least auth.MinSecretLength bytes.
	Secret string
	TTL    time.Duration
}

// CORSConfig holds the restricted-route origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string
}

// ProviderConfig configures the external identity provider. An empty Kind
// disables the external token route.
type ProviderConfig struct {
	Kind     string
	Name     string
	Endpoint string
	Issuer   string
	Timeout  time.Duration
}

// RateLimitConfig configures login throttling.
type RateLimitConfig struct {
	Backend       string
	Requests      int
	Window        time.Duration
	MaxKeys       int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// ProviderEnabled reports whether an external provider is configured.
func (c *Config) ProviderEnabled() bool {
	return c.Provider.Kind != ""
}

// ProviderOptions converts the provider section for provider.New.
func (c *Config) ProviderOptions() provider.Config {
	return provider.Config{
		Kind:     provider.Kind(c.Provider.Kind),
		Name:     c.Provider.Name,
		Endpoint: c.Provider.Endpoint,
		Issuer:   c.Provider.Issuer,
		Timeout:  c.Provider.Timeout,
	}
}

// RateLimitOptions converts the rate limit section for ratelimit.New.
func (c *Config) RateLimitOptions() ratelimit.Config {
	return ratelimit.Config{
		Backend:       ratelimit.Backend(c.RateLimit.Backend),
		MaxKeys:       c.RateLimit.MaxKeys,
		RedisAddr:     c.RateLimit.RedisAddr,
		RedisPassword: c.RateLimit.RedisPassword,
		RedisDB:       c.RateLimit.RedisDB,
	}
}

// SetDefaults registers every key and its default with viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "file:gateway.db?cache=shared")
	v.SetDefault("max_db_connections", 25)
	v.SetDefault("server_addr", ":3000")
	v.SetDefault("tls_addr", ":3443")
	v.SetDefault("tls_cert_file", "")
	v.SetDefault("tls_key_file", "")
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("trusted_proxies", []string{})

	v.SetDefault("token.secret", "")
	v.SetDefault("token.ttl", auth.DefaultTokenTTL)

	v.SetDefault("cors.allowed_origins", origin.DefaultAllowedOrigins)

	v.SetDefault("provider.kind", "")
	v.SetDefault("provider.name", "facebook")
	v.SetDefault("provider.endpoint", "https://graph.facebook.com/v19.0/me")
	v.SetDefault("provider.issuer", "")
	v.SetDefault("provider.timeout", provider.DefaultTimeout)

	v.SetDefault("ratelimit.backend", string(ratelimit.BackendMemory))
	v.SetDefault("ratelimit.requests", 10)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.max_keys", ratelimit.DefaultMaxKeys)
	v.SetDefault("ratelimit.redis_addr", "")
	v.SetDefault("ratelimit.redis_password", "")
	v.SetDefault("ratelimit.redis_db", 0)
}

// Load reads configuration from the global viper instance: flags bound by
// the root command, GATEWAY_ environment variables, then any config file
// already read, then defaults.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	cfg := &Config{
		DatabaseURL:      v.GetString("database_url"),
		MaxDBConnections: v.GetInt("max_db_connections"),
		ServerAddr:       v.GetString("server_addr"),
		TLSAddr:          v.GetString("tls_addr"),
		TLSCertFile:      v.GetString("tls_cert_file"),
		TLSKeyFile:       v.GetString("tls_key_file"),
		Debug:            v.GetBool("debug"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		Token: TokenConfig{
			Secret: v.GetString("token.secret"),
			TTL:    v.GetDuration("token.ttl"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
		},
		Provider: ProviderConfig{
			Kind:     v.GetString("provider.kind"),
			Name:     v.GetString("provider.name"),
			Endpoint: v.GetString("provider.endpoint"),
			Issuer:   v.GetString("provider.issuer"),
			Timeout:  v.GetDuration("provider.timeout"),
		},
		RateLimit: RateLimitConfig{
			Backend:       v.GetString("ratelimit.backend"),
			Requests:      v.GetInt("ratelimit.requests"),
			Window:        v.GetDuration("ratelimit.window"),
			MaxKeys:       v.GetInt("ratelimit.max_keys"),
			RedisAddr:     v.GetString("ratelimit.redis_addr"),
			RedisPassword: v.GetString("ratelimit.redis_password"),
			RedisDB:       v.GetInt("ratelimit.redis_db"),
		},
	}

	proxies, err := middleware.ParseTrustedProxies(splitList(v.GetStringSlice("trusted_proxies")))
	if err != nil {
		return nil, fmt.Errorf("trusted_proxies: %w", err)
	}
	cfg.TrustedProxies = proxies

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("token.ttl must be positive, got %s", c.Token.TTL)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls_cert_file and tls_key_file must be set together")
	}

	switch provider.Kind(c.Provider.Kind) {
	case "":
	case provider.KindGraph:
		if c.Provider.Endpoint == "" {
			return errors.New("provider.endpoint is required for the graph provider")
		}
	case provider.KindOIDC:
		if c.Provider.Issuer == "" {
			return errors.New("provider.issuer is required for the oidc provider")
		}
	default:
		return fmt.Errorf("provider.kind must be graph, oidc or empty, got %q", c.Provider.Kind)
	}
	if c.ProviderEnabled() && c.Provider.Name == "" {
		return errors.New("provider.name is required when a provider is configured")
	}

	switch ratelimit.Backend(c.RateLimit.Backend) {
	case ratelimit.BackendMemory, ratelimit.BackendNone:
	case ratelimit.BackendRedis:
		if c.RateLimit.RedisAddr == "" {
			return errors.New("ratelimit.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("ratelimit.backend must be memory, redis or none, got %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend != string(ratelimit.BackendNone) && c.RateLimit.Window <= 0 {
		return errors.New("ratelimit.window must be positive")
	}

	return nil
}

// ValidateServe checks settings only the HTTP server needs.
func (c *Config) ValidateServe() error {
	if c.Token.Secret == "" {
		return fmt.Errorf("token.secret is required (set %s_TOKEN_SECRET)", EnvPrefix)
	}
	if len(c.Token.Secret) < auth.MinSecretLength {
		return fmt.Errorf("token.secret must be at least %d bytes", auth.MinSecretLength)
	}
	return nil
}

// splitList flattens comma-separated entries so env values like "a,b" work.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
