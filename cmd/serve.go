package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/confusion-labs/gateway/cmd/cmdutil"
	"github.com/confusion-labs/gateway/internal/origin"
	"github.com/confusion-labs/gateway/internal/server"
	"github.com/confusion-labs/gateway/internal/validation"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	Long: `Starts the HTTP server with the /users authentication routes. When a TLS
certificate and key are configured the routes are served on tls_addr and the
plain listener redirects every request to HTTPS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServe(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		svc, err := cmdutil.NewServices(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		logger := slog.Default().With("component", "serve")
		logger.Info("connected to database")

		validator, err := validation.NewSchemaValidator(validation.DefaultCacheSize)
		if err != nil {
			return fmt.Errorf("failed to initialize payload validator: %w", err)
		}

		externalProvider := ""
		if svc.Provider != nil {
			externalProvider = svc.Provider.Name()
			logger.Info("external identity provider enabled", "provider", externalProvider, "kind", cfg.Provider.Kind)
		}
		if svc.Limiter == nil {
			logger.Warn("login throttling disabled")
		}

		handler := server.NewH2CHandler(server.RouterOptions{
			Users:            server.NewUsersHandler(svc.Dispatcher, svc.Identities, svc.Hasher),
			Dispatcher:       svc.Dispatcher,
			Gate:             svc.Gate,
			Validator:        validator,
			Origins:          origin.NewPolicy(cfg.CORS.AllowedOrigins),
			ExternalProvider: externalProvider,
			LoginLimiter:     svc.Limiter,
			LoginRequests:    cfg.RateLimit.Requests,
			LoginWindow:      cfg.RateLimit.Window,
			TrustedProxies:   cfg.TrustedProxies,
			HealthHandler: func(w http.ResponseWriter, r *http.Request) {
				if err := svc.DB.PingContext(r.Context()); err != nil {
					http.Error(w, "database unavailable", http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("OK"))
			},
		})

		servers := make([]*http.Server, 0, 2)
		serverErrors := make(chan error, 2)

		if cfg.TLSEnabled() {
			tlsSrv := newHTTPServer(cfg.TLSAddr, handler)
			redirectSrv := newHTTPServer(cfg.ServerAddr, server.NewHTTPSRedirectHandler(cfg.TLSAddr))
			servers = append(servers, tlsSrv, redirectSrv)

			go func() {
				logger.Info("starting TLS server", "addr", cfg.TLSAddr)
				serverErrors <- tlsSrv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			}()
			go func() {
				logger.Info("starting HTTPS redirect", "addr", cfg.ServerAddr, "target", cfg.TLSAddr)
				serverErrors <- redirectSrv.ListenAndServe()
			}()
		} else {
			srv := newHTTPServer(cfg.ServerAddr, handler)
			servers = append(servers, srv)

			go func() {
				logger.Info("starting server", "addr", cfg.ServerAddr)
				serverErrors <- srv.ListenAndServe()
			}()
		}

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		var serveErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				serveErr = fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			logger.Info("shutting down gracefully", "signal", sig.String())
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown failed, forcing close", "addr", srv.Addr, "error", err)
				_ = srv.Close()
			}
		}

		if serveErr == nil {
			logger.Info("server stopped")
		}
		return serveErr
	},
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
