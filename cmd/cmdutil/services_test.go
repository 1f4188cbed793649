package cmdutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confusion-labs/gateway/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{DatabaseURL: ":memory:"}
	cfg.Token.Secret = strings.Repeat("s", 32)
	cfg.Token.TTL = time.Hour
	cfg.RateLimit.Backend = "memory"
	cfg.RateLimit.MaxKeys = 16
	cfg.Provider.Name = "facebook"
	cfg.Provider.Endpoint = "https://graph.example.com/me"
	cfg.Provider.Timeout = time.Second
	return cfg
}

func TestNewServices(t *testing.T) {
	t.Run("without provider", func(t *testing.T) {
		svc, err := NewServices(context.Background(), testConfig())
		require.NoError(t, err)
		defer svc.Close()

		assert.NotNil(t, svc.DB)
		assert.NotNil(t, svc.Identities)
		assert.NotNil(t, svc.Dispatcher)
		assert.NotNil(t, svc.Gate)
		assert.NotNil(t, svc.Limiter)
		assert.Nil(t, svc.Provider)
	})

	t.Run("graph provider", func(t *testing.T) {
		cfg := testConfig()
		cfg.Provider.Kind = "graph"

		svc, err := NewServices(context.Background(), cfg)
		require.NoError(t, err)
		defer svc.Close()

		require.NotNil(t, svc.Provider)
		assert.Equal(t, "facebook", svc.Provider.Name())
	})

	t.Run("throttling disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.RateLimit.Backend = "none"

		svc, err := NewServices(context.Background(), cfg)
		require.NoError(t, err)
		defer svc.Close()
		assert.Nil(t, svc.Limiter)
	})

	t.Run("short secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.Token.Secret = "short"

		_, err := NewServices(context.Background(), cfg)
		assert.ErrorContains(t, err, "token codec")
	})

	t.Run("bad database url", func(t *testing.T) {
		cfg := testConfig()
		cfg.DatabaseURL = ""

		_, err := NewServices(context.Background(), cfg)
		assert.ErrorContains(t, err, "failed to connect to database")
	})
}
