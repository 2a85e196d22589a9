package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/services/identity"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Cache.IdentityTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.UserInfoTTL)
	assert.Equal(t, entity.NetworkMainnet, cfg.DefaultNetwork())
	assert.Equal(t, "https://graph.facebook.com/v2.12", cfg.Facebook.GraphURL)
}

func TestLoadFrom_Values(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"NETWORK":                     "rinkeby",
		"ETH_RPC_URLS":                "1=https://mainnet.example,4=https://rinkeby.example",
		"CACHE_FAILURE_POLICY":        "backoff",
		"CACHE_FAILURE_BACKOFF":       "45s",
		"REDIS_ADDR":                  "localhost:6379",
		"SNS_BINDINGS_TOPIC_ARN":      "arn:bindings",
		"SNS_VERIFICATIONS_TOPIC_ARN": "arn:verifications",
		"OTEL_SAMPLE_RATE":            "0.25",
	})
	require.NoError(t, err)

	assert.Equal(t, entity.NetworkRinkeby, cfg.DefaultNetwork())
	u, ok := cfg.RPCURL(entity.NetworkRinkeby)
	require.True(t, ok)
	assert.Equal(t, "https://rinkeby.example", u)
	_, ok = cfg.RPCURL(entity.NetworkKovan)
	assert.False(t, ok)

	ic := cfg.IdentityCacheConfig(nil)
	assert.Equal(t, identity.FailureBackoff, ic.FailurePolicy)
	assert.Equal(t, 45*time.Second, ic.FailureBackoff)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRate, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{name: "log level", vars: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "log format", vars: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "network", vars: map[string]string{"NETWORK": "moon"}},
		{name: "failure policy", vars: map[string]string{"CACHE_FAILURE_POLICY": "panic"}},
		{name: "ttl", vars: map[string]string{"CACHE_IDENTITY_TTL": "0s"}},
		{name: "rpc network", vars: map[string]string{"ETH_RPC_URLS": "moon=https://x"}},
		{name: "rpc endpoint", vars: map[string]string{"ETH_RPC_URLS": "1=not a url"}},
		{name: "half sns", vars: map[string]string{"SNS_BINDINGS_TOPIC_ARN": "arn:x"}},
		{name: "sample rate", vars: map[string]string{"OTEL_SAMPLE_RATE": "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestNewLogger_JSON(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"LOG_FORMAT": "json", "LOG_LEVEL": "warn"})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"component":"test"`)
}
