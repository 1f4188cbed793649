package iam

import (
	"errors"
	"fmt"
)

// FailureKind classifies why authentication or authorization failed. The kind
// is kept for logging; the HTTP boundary collapses it to 401 or 403.
type FailureKind string

const (
	FailureNoSuchIdentity        FailureKind = "no_such_identity"
	FailureBadCredentials        FailureKind = "bad_credentials"
	FailureMissingToken          FailureKind = "missing_token"
	FailureMalformed             FailureKind = "malformed"
	FailureBadSignature          FailureKind = "bad_signature"
	FailureExpired               FailureKind = "expired"
	FailureIdentityGone          FailureKind = "identity_gone"
	FailureProviderUnreachable   FailureKind = "provider_unreachable"
	FailureProviderRejected      FailureKind = "provider_rejected"
	FailureProviderRaceLost      FailureKind = "provider_race_lost"
	FailureInsufficientPrivilege FailureKind = "insufficient_privilege"
)

// AuthFailure is the error returned for every failed authentication or
// authorization decision.
type AuthFailure struct {
	Kind FailureKind
	Err  error
}

func (f *AuthFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("auth failure (%s): %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("auth failure (%s)", f.Kind)
}

func (f *AuthFailure) Unwrap() error {
	return f.Err
}

// Is matches any *AuthFailure of the same kind, so errors.Is(err, ErrExpired)
// works regardless of the wrapped cause.
func (f *AuthFailure) Is(target error) bool {
	t, ok := target.(*AuthFailure)
	return ok && t.Kind == f.Kind
}

// IsIdentityFailure reports whether the failure means identity was not
// established (as opposed to a privilege denial).
func (f *AuthFailure) IsIdentityFailure() bool {
	return f.Kind != FailureInsufficientPrivilege
}

func fail(kind FailureKind, err error) *AuthFailure {
	return &AuthFailure{Kind: kind, Err: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNoSuchIdentity        = &AuthFailure{Kind: FailureNoSuchIdentity}
	ErrBadCredentials        = &AuthFailure{Kind: FailureBadCredentials}
	ErrMissingToken          = &AuthFailure{Kind: FailureMissingToken}
	ErrMalformed             = &AuthFailure{Kind: FailureMalformed}
	ErrBadSignature          = &AuthFailure{Kind: FailureBadSignature}
	ErrExpired               = &AuthFailure{Kind: FailureExpired}
	ErrIdentityGone          = &AuthFailure{Kind: FailureIdentityGone}
	ErrProviderUnreachable   = &AuthFailure{Kind: FailureProviderUnreachable}
	ErrProviderRejected      = &AuthFailure{Kind: FailureProviderRejected}
	ErrProviderRaceLost      = &AuthFailure{Kind: FailureProviderRaceLost}
	ErrInsufficientPrivilege = &AuthFailure{Kind: FailureInsufficientPrivilege}
)

// FailureKindOf extracts the kind of an *AuthFailure anywhere in err's chain.
func FailureKindOf(err error) (FailureKind, bool) {
	var f *AuthFailure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}
