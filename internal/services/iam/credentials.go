package iam

import (
	"context"
	"errors"
	"fmt"

	"github.com/confusion-labs/gateway/internal/auth"
	"github.com/confusion-labs/gateway/internal/db/models"
	"github.com/confusion-labs/gateway/internal/repository"
)

// CredentialVerifier checks a handle/password pair against the stored bcrypt hash.
type CredentialVerifier struct {
	identities repository.IdentityRepository
	hasher     *auth.PasswordHasher
}

// NewCredentialVerifier creates a verifier backed by identities.
func NewCredentialVerifier(identities repository.IdentityRepository, hasher *auth.PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{identities: identities, hasher: hasher}
}

// Verify returns the identity owning handle when password matches.
//
// Unknown handles still pay for one bcrypt comparison so the two failure
// kinds cannot be told apart by timing. Both surface as the same generic
// response at the HTTP boundary.
func (v *CredentialVerifier) Verify(ctx context.Context, handle, password string) (*models.Identity, error) {
	if handle == "" {
		_ = v.hasher.CompareDummy(password)
		return nil, fail(FailureNoSuchIdentity, errors.New("empty handle"))
	}

	identity, err := v.identities.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = v.hasher.CompareDummy(password)
			return nil, fail(FailureNoSuchIdentity, err)
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	if !identity.HasPassword() {
		// Provider-only identity: there is no password to match.
		_ = v.hasher.CompareDummy(password)
		return nil, fail(FailureBadCredentials, errors.New("identity has no password"))
	}

	if err := v.hasher.Compare(*identity.PasswordHash, password); err != nil {
		return nil, fail(FailureBadCredentials, err)
	}

	return identity, nil
}
