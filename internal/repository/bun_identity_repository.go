package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/confusion-labs/gateway/internal/db/bunx"
	"github.com/confusion-labs/gateway/internal/db/models"
)

// BunIdentityRepository implements IdentityRepository using Bun ORM
type BunIdentityRepository struct {
	db  *bun.DB
	now func() time.Time
}

// NewBunIdentityRepository creates a new Bun-based identity repository
func NewBunIdentityRepository(db *bun.DB) *BunIdentityRepository {
	return &BunIdentityRepository{db: db, now: time.Now}
}

// FindByID retrieves an identity by its primary key
func (r *BunIdentityRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.findOne(ctx, "find identity by id", "id = ?", id)
}

// FindByHandle retrieves an identity by its case-sensitive handle
func (r *BunIdentityRepository) FindByHandle(ctx context.Context, handle string) (*models.Identity, error) {
	return r.findOne(ctx, "find identity by handle", "handle = ?", handle)
}

// FindByExternalID retrieves the identity linked to an external provider account
func (r *BunIdentityRepository) FindByExternalID(ctx context.Context, provider, providerID string) (*models.Identity, error) {
	identity := new(models.Identity)
	err := r.db.NewSelect().
		Model(identity).
		Where("provider = ?", provider).
		Where("provider_id = ?", providerID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, provider, providerID)
		}
		return nil, fmt.Errorf("find identity by external id: %w", err)
	}
	return identity, nil
}

func (r *BunIdentityRepository) findOne(ctx context.Context, op, where string, arg any) (*models.Identity, error) {
	identity := new(models.Identity)
	err := r.db.NewSelect().
		Model(identity).
		Where(where, arg).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, arg)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

// Create inserts a new identity. An empty ID is filled with a UUIDv7.
// Handle or provider link collisions return ErrUniqueViolation.
func (r *BunIdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if !identity.HasAuthPath() {
		return ErrNoAuthPath
	}

	if identity.ID == "" {
		identity.ID = bunx.NewUUIDv7()
	}
	now := r.now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(identity).
		Exec(ctx)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("create identity %q: %w", identity.Handle, ErrUniqueViolation)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// Save persists every mutable column of an existing identity
func (r *BunIdentityRepository) Save(ctx context.Context, identity *models.Identity) error {
	if !identity.HasAuthPath() {
		return ErrNoAuthPath
	}

	identity.UpdatedAt = r.now().UTC()
	result, err := r.db.NewUpdate().
		Model(identity).
		Column("handle", "password_hash", "provider", "provider_id", "given_name", "family_name", "elevated", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("save identity %q: %w", identity.Handle, ErrUniqueViolation)
		}
		return fmt.Errorf("save identity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, identity.ID)
	}

	return nil
}

// List retrieves all identities, oldest first
func (r *BunIdentityRepository) List(ctx context.Context) ([]models.Identity, error) {
	var identities []models.Identity
	err := r.db.NewSelect().
		Model(&identities).
		Order("created_at ASC", "handle ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return identities, nil
}
