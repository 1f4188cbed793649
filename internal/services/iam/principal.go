package iam

import (
	"context"
	"fmt"

	"github.com/confusion-labs/gateway/internal/db/models"
)

// Level is a privilege level. Levels are ordered: elevated includes standard.
type Level string

const (
	LevelStandard Level = "standard"
	LevelElevated Level = "elevated"
)

// ParseLevel converts a configuration or CLI value into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelStandard, LevelElevated:
		return Level(s), nil
	default:
		return "", fmt.Errorf("unknown privilege level %q", s)
	}
}

// Principal is an authenticated identity as seen by one request.
//
// This struct is IMMUTABLE after construction. The privilege level is read
// from the live identity record when the Principal is built, so a promotion or
// demotion is visible to the next request that resolves the identity.
type Principal struct {
	// ID references identities.id (UUIDv7).
	ID string

	// Handle is the unique, case-sensitive login name.
	Handle string

	GivenName  string
	FamilyName string

	// Provider is set when the identity is linked to an external account.
	Provider string

	Level Level
}

// IsElevated reports whether the principal holds the elevated level.
func (p *Principal) IsElevated() bool {
	return p != nil && p.Level == LevelElevated
}

// NewPrincipal builds a Principal from a stored identity.
func NewPrincipal(identity *models.Identity) *Principal {
	level := LevelStandard
	if identity.Elevated {
		level = LevelElevated
	}

	p := &Principal{
		ID:         identity.ID,
		Handle:     identity.Handle,
		GivenName:  identity.GivenName,
		FamilyName: identity.FamilyName,
		Level:      level,
	}
	if identity.Provider != nil {
		p.Provider = *identity.Provider
	}
	return p
}

type principalContextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the Principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}
