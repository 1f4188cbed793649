package repository

import (
	"context"
	"errors"

	"github.com/confusion-labs/gateway/internal/db/models"
)

var (
	// ErrNotFound is returned when no identity matches the lookup.
	ErrNotFound = errors.New("identity not found")

	// ErrUniqueViolation is returned when a write collides with an existing handle
	// or provider link.
	ErrUniqueViolation = errors.New("identity uniqueness violation")

	// ErrNoAuthPath is returned when an identity has neither a password hash nor a provider link.
	ErrNoAuthPath = errors.New("identity has no authentication path")
)

// IdentityRepository exposes persistence operations for identities.
type IdentityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	FindByHandle(ctx context.Context, handle string) (*models.Identity, error)
	FindByExternalID(ctx context.Context, provider, providerID string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	Save(ctx context.Context, identity *models.Identity) error
	List(ctx context.Context) ([]models.Identity, error)
}
