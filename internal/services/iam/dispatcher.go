package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/confusion-labs/gateway/internal/auth"
	"github.com/confusion-labs/gateway/internal/db/models"
	"github.com/confusion-labs/gateway/internal/repository"
	"github.com/confusion-labs/gateway/internal/telemetry"
)

// Strategy names how a route establishes identity. Each route is bound to
// exactly one strategy.
type Strategy int

const (
	StrategyPassword Strategy = iota + 1
	StrategyBearer
	StrategyExternal
)

func (s Strategy) String() string {
	switch s {
	case StrategyPassword:
		return "password"
	case StrategyBearer:
		return "bearer"
	case StrategyExternal:
		return "external"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Credentials is what a request presented. The set of implementations is closed.
type Credentials interface {
	Strategy() Strategy
	credentials()
}

// PasswordCredentials is a handle/password pair from a login body.
type PasswordCredentials struct {
	Handle   string
	Password string
}

// BearerCredentials is a token issued by this service. An empty Token means
// the request carried none.
type BearerCredentials struct {
	Token string
}

// ExternalCredentials is an access token issued by the external provider.
type ExternalCredentials struct {
	AccessToken string
}

func (PasswordCredentials) Strategy() Strategy { return StrategyPassword }
func (BearerCredentials) Strategy() Strategy   { return StrategyBearer }
func (ExternalCredentials) Strategy() Strategy { return StrategyExternal }

func (PasswordCredentials) credentials() {}
func (BearerCredentials) credentials()   {}
func (ExternalCredentials) credentials() {}

// Dispatcher runs the verification flow matching the presented credentials.
type Dispatcher struct {
	verifier   *CredentialVerifier
	codec      *auth.TokenCodec
	bridge     *ProviderBridge
	identities repository.IdentityRepository
	logger     *slog.Logger
	metrics    *telemetry.AuthMetrics
}

// NewDispatcher wires the three strategies. bridge may be nil when no external
// provider is configured; external credentials then fail as rejected.
func NewDispatcher(verifier *CredentialVerifier, codec *auth.TokenCodec, bridge *ProviderBridge, identities repository.IdentityRepository) *Dispatcher {
	logger := slog.Default().With("component", "dispatcher")
	metrics, err := telemetry.NewAuthMetrics()
	if err != nil {
		logger.Warn("authentication metrics disabled", "error", err)
	}

	return &Dispatcher{
		verifier:   verifier,
		codec:      codec,
		bridge:     bridge,
		identities: identities,
		logger:     logger,
		metrics:    metrics,
	}
}

// Authenticate resolves creds into a Principal.
//
// Return values:
//   - (principal, nil): identity established
//   - (nil, *AuthFailure): identity not established, Kind says why
//   - (nil, other error): infrastructure failure (storage unavailable)
func (d *Dispatcher) Authenticate(ctx context.Context, creds Credentials) (*Principal, error) {
	strategy := creds.Strategy().String()
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.Authenticate",
		attribute.String(telemetry.AttrStrategy, strategy),
	)
	defer span.End()
	start := time.Now()

	var (
		identity *models.Identity
		err      error
	)

	switch c := creds.(type) {
	case PasswordCredentials:
		identity, err = d.verifier.Verify(ctx, c.Handle, c.Password)
	case BearerCredentials:
		identity, err = d.authenticateBearer(ctx, c.Token)
	case ExternalCredentials:
		identity, err = d.authenticateExternal(ctx, c.AccessToken)
	default:
		return nil, fmt.Errorf("unsupported credentials %T", creds)
	}

	if err != nil {
		if kind, ok := FailureKindOf(err); ok {
			d.logger.InfoContext(ctx, "authentication failed", "strategy", strategy, "reason", string(kind))
			telemetry.AddEvent(span, "authentication.failed", attribute.String(telemetry.AttrFailureReason, string(kind)))
			d.metrics.RecordAuth(ctx, strategy, string(kind), time.Since(start))
		} else {
			d.logger.ErrorContext(ctx, "authentication error", "strategy", strategy, "error", err)
			telemetry.RecordError(span, err)
			d.metrics.RecordAuth(ctx, strategy, "error", time.Since(start))
		}
		return nil, err
	}

	principal := NewPrincipal(identity)
	telemetry.AddEvent(span, "authentication.succeeded",
		attribute.String(telemetry.AttrPrincipalID, principal.ID),
		attribute.String(telemetry.AttrPrincipalLevel, string(principal.Level)),
	)
	d.metrics.RecordAuth(ctx, strategy, "", time.Since(start))
	return principal, nil
}

// IssueToken signs a token referencing p with the codec's default ttl.
func (d *Dispatcher) IssueToken(p *Principal) (string, error) {
	token, _, err := d.codec.Issue(p.ID, d.codec.DefaultTTL())
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

func (d *Dispatcher) authenticateBearer(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := d.codec.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			return nil, fail(FailureExpired, err)
		case errors.Is(err, auth.ErrBadSignature):
			return nil, fail(FailureBadSignature, err)
		default:
			return nil, fail(FailureMalformed, err)
		}
	}

	// Re-read the identity so privilege changes since issuance are honored.
	identity, err := d.identities.FindByID(ctx, claims.IdentityRef())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(FailureIdentityGone, err)
		}
		return nil, fmt.Errorf("resolve token identity: %w", err)
	}
	return identity, nil
}

func (d *Dispatcher) authenticateExternal(ctx context.Context, accessToken string) (*models.Identity, error) {
	if d.bridge == nil {
		return nil, fail(FailureProviderRejected, errors.New("no external provider configured"))
	}
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	identity, profile, err := d.bridge.Exchange(ctx, accessToken)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, ErrProviderRaceLost) {
		return nil, err
	}

	// Another request created the identity between our lookup and insert.
	identity, lookupErr := d.bridge.Lookup(ctx, profile)
	if lookupErr != nil {
		if errors.Is(lookupErr, repository.ErrNotFound) {
			return nil, err
		}
		return nil, lookupErr
	}
	return identity, nil
}
