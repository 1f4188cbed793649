package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confusion-labs/gateway/internal/config"
)

func TestReadConfigFile(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gateway.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server_addr: \":9000\"\n"), 0o600))

		v := viper.New()
		require.NoError(t, readConfigFile(v, path))
		assert.Equal(t, ":9000", v.GetString("server_addr"))
	})

	t.Run("explicit file missing", func(t *testing.T) {
		v := viper.New()
		err := readConfigFile(v, filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("default file absent is fine", func(t *testing.T) {
		t.Chdir(t.TempDir())
		assert.NoError(t, readConfigFile(viper.New(), ""))
	})
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	logger := newLogger(&config.Config{LogLevel: "warn"})
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))

	logger = newLogger(&config.Config{LogLevel: "error", Debug: true})
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))

	logger = newLogger(&config.Config{LogLevel: "bogus", LogFormat: "json"})
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "db", "users"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	for _, flag := range []string{"config", "db-url", "server-addr", "debug", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}
