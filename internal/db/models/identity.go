package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Identity is a registered account. It authenticates with a local password,
// a linked external provider account, or both.
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:i"`

	ID           string    `bun:"id,pk,type:uuid"`
	Handle       string    `bun:"handle,notnull,unique"`
	PasswordHash *string   `bun:"password_hash"`                               // bcrypt hash, nil for provider-only identities
	Provider     *string   `bun:"provider,unique:identities_provider_link"`    // e.g. "facebook"
	ProviderID   *string   `bun:"provider_id,unique:identities_provider_link"` // subject at the provider
	GivenName    string    `bun:"given_name,notnull,default:''"`
	FamilyName   string    `bun:"family_name,notnull,default:''"`
	Elevated     bool      `bun:"elevated,notnull,default:false"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// HasPassword reports whether the identity can authenticate with a local password.
func (i *Identity) HasPassword() bool {
	return i != nil && i.PasswordHash != nil && *i.PasswordHash != ""
}

// HasProviderLink reports whether the identity is linked to an external provider account.
func (i *Identity) HasProviderLink() bool {
	return i != nil &&
		i.Provider != nil && *i.Provider != "" &&
		i.ProviderID != nil && *i.ProviderID != ""
}

// HasAuthPath reports whether at least one authentication path exists.
// Identities without one must never be persisted.
func (i *Identity) HasAuthPath() bool {
	return i.HasPassword() || i.HasProviderLink()
}
