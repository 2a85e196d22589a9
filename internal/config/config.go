// Package config loads process configuration from the environment.
//
// Values come from real environment variables first, then from .env and
// .env.local in the working directory, which never override what is set.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/services/identity"
)

// Config is the full process configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Network is the default network for CLI commands, by name or id.
	Network string `env:"NETWORK" envDefault:"mainnet"`

	HTTP struct {
		Addr         string        `env:"ADDR" envDefault:":8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	} `envPrefix:"HTTP_"`

	Database struct {
		URL      string `env:"URL"`
		MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
	} `envPrefix:"DATABASE_"`

	Redis struct {
		Addr     string        `env:"ADDR"`
		Password string        `env:"PASSWORD"`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"0s"`
	} `envPrefix:"REDIS_"`

	// RPCURLs maps network ids to JSON-RPC endpoints, e.g. "1=https://...,4=https://...".
	RPCURLs          map[string]string `env:"ETH_RPC_URLS" envSeparator:"," envKeyValSeparator:"="`
	IdentityContract string            `env:"IDENTITY_CONTRACT"`

	// SignerKey is the hex secp256k1 key used by the prove command.
	SignerKey string `env:"SIGNER_KEY"`

	Cache struct {
		IdentityTTL    time.Duration `env:"IDENTITY_TTL" envDefault:"10m"`
		FailurePolicy  string        `env:"FAILURE_POLICY" envDefault:"retry"`
		FailureBackoff time.Duration `env:"FAILURE_BACKOFF" envDefault:"30s"`
		UserInfoTTL    time.Duration `env:"USERINFO_TTL" envDefault:"5m"`
	} `envPrefix:"CACHE_"`

	Directory struct {
		SearchURL string `env:"SEARCH_URL"`
		UsersURL  string `env:"USERS_URL"`
	} `envPrefix:"DIRECTORY_"`

	Twitter struct {
		ConsumerKey    string `env:"CONSUMER_KEY"`
		ConsumerSecret string `env:"CONSUMER_SECRET"`
		BaseURL        string `env:"BASE_URL" envDefault:"https://api.twitter.com"`
	} `envPrefix:"TWITTER_"`

	Facebook struct {
		AppID     string `env:"APP_ID"`
		AppSecret string `env:"APP_SECRET"`
		GraphURL  string `env:"GRAPH_URL" envDefault:"https://graph.facebook.com/v2.12"`
	} `envPrefix:"FACEBOOK_"`

	SNS struct {
		Region             string `env:"REGION" envDefault:"us-east-1"`
		Endpoint           string `env:"ENDPOINT"`
		BindingsTopic      string `env:"BINDINGS_TOPIC_ARN"`
		VerificationsTopic string `env:"VERIFICATIONS_TOPIC_ARN"`
	} `envPrefix:"SNS_"`

	Telemetry struct {
		ServiceName  string  `env:"SERVICE_NAME" envDefault:"socialproof"`
		Environment  string  `env:"ENVIRONMENT" envDefault:"development"`
		OTLPEndpoint string  `env:"OTLP_ENDPOINT"`
		SampleRate   float64 `env:"SAMPLE_RATE" envDefault:"1"`
		Traces       bool    `env:"TRACES" envDefault:"false"`
	} `envPrefix:"OTEL_"`
}

// Load reads .env files and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if _, err := entity.ParseNetworkID(c.Network); err != nil {
		errs = append(errs, fmt.Errorf("NETWORK: %w", err))
	}
	if _, err := identity.ParseFailurePolicy(c.Cache.FailurePolicy); err != nil {
		errs = append(errs, fmt.Errorf("CACHE_FAILURE_POLICY: %w", err))
	}
	if c.Cache.IdentityTTL <= 0 || c.Cache.UserInfoTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	for raw, endpoint := range c.RPCURLs {
		if _, err := entity.ParseNetworkID(raw); err != nil {
			errs = append(errs, fmt.Errorf("ETH_RPC_URLS: %w", err))
		}
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			errs = append(errs, fmt.Errorf("ETH_RPC_URLS: endpoint for %s: %w", raw, err))
		}
	}
	if (c.SNS.BindingsTopic == "") != (c.SNS.VerificationsTopic == "") {
		errs = append(errs, errors.New("SNS topics must be configured together"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.Telemetry.SampleRate))
	}
	return errors.Join(errs...)
}

// DefaultNetwork returns the parsed NETWORK value.
func (c *Config) DefaultNetwork() entity.NetworkID {
	n, _ := entity.ParseNetworkID(c.Network)
	return n
}

// RPCURL returns the JSON-RPC endpoint configured for network.
func (c *Config) RPCURL(network entity.NetworkID) (string, bool) {
	for raw, endpoint := range c.RPCURLs {
		if n, err := entity.ParseNetworkID(raw); err == nil && n == network {
			return endpoint, true
		}
	}
	return "", false
}

// IdentityCacheConfig converts the cache settings.
func (c *Config) IdentityCacheConfig(logger *slog.Logger) identity.Config {
	policy, _ := identity.ParseFailurePolicy(c.Cache.FailurePolicy)
	return identity.Config{
		TTL:            c.Cache.IdentityTTL,
		FailurePolicy:  policy,
		FailureBackoff: c.Cache.FailureBackoff,
		Logger:         logger,
	}
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", raw)
	}
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
