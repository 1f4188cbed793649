package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of issued tokens when the caller passes none.
const DefaultTokenTTL = 48 * time.Hour

// MinSecretLength is the shortest accepted HMAC signing secret, in bytes.
const MinSecretLength = 32

var (
	// ErrMalformedToken is returned when a token cannot be decoded.
	ErrMalformedToken = errors.New("malformed token")

	// ErrBadSignature is returned when the signature does not verify against the secret.
	ErrBadSignature = errors.New("bad token signature")

	// ErrTokenExpired is returned once the current time reaches the token's expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the token payload. It carries a reference to the identity only;
// live attributes are re-read from storage on every use.
type Claims struct {
	jwt.RegisteredClaims
}

// IdentityRef returns the referenced identity ID (the sub claim).
func (c *Claims) IdentityRef() string {
	return c.Subject
}

// TokenCodec signs and verifies HS256 bearer tokens with a process-wide secret.
// It is safe for concurrent use.
type TokenCodec struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec creates a codec. A non-positive defaultTTL falls back to DefaultTokenTTL.
func NewTokenCodec(secret []byte, defaultTTL time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTokenTTL
	}

	c := &TokenCodec{
		secret:     append([]byte(nil), secret...),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	return c, nil
}

// DefaultTTL returns the lifetime applied when Issue is called without one.
func (c *TokenCodec) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Issue signs a token for identityRef that expires ttl from now.
// A non-positive ttl uses the codec default.
func (c *TokenCodec) Issue(identityRef string, ttl time.Duration) (string, *Claims, error) {
	if identityRef == "" {
		return "", nil, errors.New("identity reference is required")
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityRef,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify decodes token and checks its signature and expiry. Failures wrap
// exactly one of ErrMalformedToken, ErrBadSignature or ErrTokenExpired.
//
// A three-segment token has its HMAC checked before the header and payload
// are decoded, so any alteration of a signed token reports ErrBadSignature.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	if err := c.checkSignature(token); err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrMalformedToken)
	}

	return claims, nil
}

func (c *TokenCodec) checkSignature(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		// Left to the parser, which reports the segment count.
		return nil
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: signature is not base64url: %v", ErrMalformedToken, err)
	}
	// Non-canonical trailing bits decode to the same bytes.
	if base64.RawURLEncoding.EncodeToString(sig) != parts[2] {
		return fmt.Errorf("%w: non-canonical signature encoding", ErrBadSignature)
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
