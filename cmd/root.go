package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/confusion-labs/gateway/cmd/users"
	"github.com/confusion-labs/gateway/internal/config"
)

var (
	cfg        *config.Config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Authentication gateway for the restaurant API",
	Long: `gateway authenticates callers by password, bearer token or an external
identity provider, issues signed tokens and gates privileged routes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := readConfigFile(viper.GetViper(), configFile); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		slog.SetDefault(newLogger(cfg))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./gateway.yaml if present)")
	flags.String("db-url", "", "Database connection URL (env: GATEWAY_DATABASE_URL)")
	flags.String("server-addr", "", "Server bind address (env: GATEWAY_SERVER_ADDR)")
	flags.Bool("debug", false, "Enable debug logging (env: GATEWAY_DEBUG)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (env: GATEWAY_LOG_LEVEL)")
	flags.String("log-format", "", "Log format: text or json (env: GATEWAY_LOG_FORMAT)")

	bindings := map[string]string{
		"database_url": "db-url",
		"server_addr":  "server-addr",
		"debug":        "debug",
		"log_level":    "log-level",
		"log_format":   "log-format",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(users.UsersCmd)
}

// readConfigFile loads path, or ./gateway.yaml when path is empty and the
// file exists.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
