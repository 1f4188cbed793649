package iam

import (
	"fmt"

	"github.com/casbin/casbin/v2"

	"github.com/confusion-labs/gateway/internal/auth"
)

// Gate decides whether a resolved Principal holds a required level. It
// consults only the Principal and the static casbin policy.
type Gate struct {
	enforcer casbin.IEnforcer
}

// NewGate wraps an enforcer built by auth.InitEnforcer.
func NewGate(enforcer casbin.IEnforcer) *Gate {
	return &Gate{enforcer: enforcer}
}

// Authorize returns nil when p may act at required, ErrInsufficientPrivilege
// otherwise. The denial never names the level that was required.
func (g *Gate) Authorize(p *Principal, required Level) error {
	if p == nil {
		return ErrInsufficientPrivilege
	}

	allowed, err := g.enforcer.Enforce(auth.RoleID(string(p.Level)), auth.LevelID(string(required)), auth.ActionAccess)
	if err != nil {
		return fail(FailureInsufficientPrivilege, fmt.Errorf("enforce: %w", err))
	}
	if !allowed {
		return ErrInsufficientPrivilege
	}
	return nil
}
