package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/confusion-labs/gateway/internal/db/models"
	"github.com/confusion-labs/gateway/internal/provider"
	"github.com/confusion-labs/gateway/internal/repository"
	"github.com/confusion-labs/gateway/internal/telemetry"
)

// ProviderBridge maps verified external profiles onto local identities.
type ProviderBridge struct {
	verifier   provider.ProfileVerifier
	identities repository.IdentityRepository
	logger     *slog.Logger
}

// NewProviderBridge creates a bridge for the provider behind verifier.
func NewProviderBridge(verifier provider.ProfileVerifier, identities repository.IdentityRepository) *ProviderBridge {
	return &ProviderBridge{
		verifier:   verifier,
		identities: identities,
		logger:     slog.Default().With("component", "provider-bridge", "provider", verifier.Name()),
	}
}

// Exchange verifies accessToken with the provider and returns the linked
// identity, creating it on first use. A lost creation race is reported as
// ErrProviderRaceLost; the caller may retry with Lookup.
func (b *ProviderBridge) Exchange(ctx context.Context, accessToken string) (*models.Identity, *provider.Profile, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerProvider, "provider.Exchange",
		attribute.String(telemetry.AttrProvider, b.verifier.Name()),
	)
	defer span.End()

	profile, err := b.Verify(ctx, accessToken)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}

	identity, err := b.Materialize(ctx, profile)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, profile, err
	}
	telemetry.AddEvent(span, "provider.identity_resolved", attribute.String(telemetry.AttrPrincipalID, identity.ID))
	return identity, profile, nil
}

// Verify asks the provider for the profile behind accessToken. It makes a
// single attempt.
func (b *ProviderBridge) Verify(ctx context.Context, accessToken string) (*provider.Profile, error) {
	profile, err := b.verifier.Verify(ctx, accessToken)
	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, provider.ErrRejected):
		return nil, fail(FailureProviderRejected, err)
	default:
		return nil, fail(FailureProviderUnreachable, err)
	}
}

// Lookup returns the identity already linked to profile.
func (b *ProviderBridge) Lookup(ctx context.Context, profile *provider.Profile) (*models.Identity, error) {
	identity, err := b.identities.FindByExternalID(ctx, profile.Provider, profile.ProviderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup linked identity: %w", err)
	}
	return identity, nil
}

// Materialize returns the identity linked to profile, creating a provider-only
// identity when none exists yet.
func (b *ProviderBridge) Materialize(ctx context.Context, profile *provider.Profile) (*models.Identity, error) {
	identity, err := b.Lookup(ctx, profile)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	providerName := profile.Provider
	providerID := profile.ProviderID
	identity = &models.Identity{
		Handle:     profile.DisplayName,
		Provider:   &providerName,
		ProviderID: &providerID,
		GivenName:  profile.GivenName,
		FamilyName: profile.FamilyName,
	}

	if err := b.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, fail(FailureProviderRaceLost, err)
		}
		return nil, fmt.Errorf("create linked identity: %w", err)
	}

	b.logger.Info("linked identity created", "identity_id", identity.ID, "handle", identity.Handle)
	return identity, nil
}
