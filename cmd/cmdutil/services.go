package cmdutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/confusion-labs/gateway/internal/auth"
	"github.com/confusion-labs/gateway/internal/config"
	"github.com/confusion-labs/gateway/internal/db/bunx"
	"github.com/confusion-labs/gateway/internal/provider"
	"github.com/confusion-labs/gateway/internal/ratelimit"
	"github.com/confusion-labs/gateway/internal/repository"
	"github.com/confusion-labs/gateway/internal/services/iam"
)

// Store bundles the identity repository with its underlying DB connection.
type Store struct {
	DB         *bun.DB
	Identities *repository.BunIdentityRepository
	Hasher     *auth.PasswordHasher
}

// Close releases the underlying database connection.
func (s *Store) Close() {
	if s == nil || s.DB == nil {
		return
	}
	if err := bunx.Close(s.DB); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// NewStore opens the database and builds the identity repository and password hasher.
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, bunx.Options{MaxOpenConns: cfg.MaxDBConnections})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(auth.DefaultPasswordCost)
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	return &Store{
		DB:         db,
		Identities: repository.NewBunIdentityRepository(db),
		Hasher:     hasher,
	}, nil
}

// Services is the full service graph used by serve.
type Services struct {
	*Store

	Codec      *auth.TokenCodec
	Dispatcher *iam.Dispatcher
	Gate       *iam.Gate
	Provider   provider.ProfileVerifier
	Limiter    ratelimit.Limiter
}

// Close releases the limiter backend and the database connection.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if closer, ok := s.Limiter.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("failed to close rate limiter", "error", err)
		}
	}
	s.Store.Close()
}

// NewServices wires the credential verifier, token codec, provider bridge,
// strategy dispatcher, authorization gate and login limiter. The provider
// bridge is omitted when no provider is configured.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	store, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc := &Services{Store: store}
	fail := func(err error) (*Services, error) {
		svc.Close()
		return nil, err
	}

	svc.Codec, err = auth.NewTokenCodec([]byte(cfg.Token.Secret), cfg.Token.TTL)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize token codec: %w", err))
	}

	enforcer, err := auth.InitEnforcer()
	if err != nil {
		return fail(fmt.Errorf("failed to initialize casbin enforcer: %w", err))
	}
	svc.Gate = iam.NewGate(enforcer)

	var bridge *iam.ProviderBridge
	if cfg.ProviderEnabled() {
		svc.Provider, err = provider.New(cfg.ProviderOptions())
		if err != nil {
			return fail(fmt.Errorf("failed to initialize identity provider: %w", err))
		}
		bridge = iam.NewProviderBridge(svc.Provider, store.Identities)
	}

	verifier := iam.NewCredentialVerifier(store.Identities, store.Hasher)
	svc.Dispatcher = iam.NewDispatcher(verifier, svc.Codec, bridge, store.Identities)

	svc.Limiter, err = ratelimit.New(cfg.RateLimitOptions())
	if err != nil {
		return fail(fmt.Errorf("failed to initialize rate limiter: %w", err))
	}

	return svc, nil
}
