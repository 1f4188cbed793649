// Package provider verifies third-party access tokens against the issuing
// identity provider and normalizes the returned profile.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single verification round-trip.
const DefaultTimeout = 10 * time.Second

// maxProfileBytes caps how much of a provider response is read.
const maxProfileBytes = 1 << 20

var (
	// ErrUnreachable is returned when the provider cannot be reached or fails
	// on its side (transport error, timeout, 5xx). Callers may retry later.
	ErrUnreachable = errors.New("identity provider unreachable")

	// ErrRejected is returned when the provider answered but refused the token.
	ErrRejected = errors.New("identity provider rejected token")
)

// Profile is a verified external profile.
type Profile struct {
	Provider    string
	ProviderID  string
	DisplayName string
	GivenName   string
	FamilyName  string
}

// ProfileVerifier exchanges an access token for the profile it belongs to.
// Implementations make exactly one attempt and never retry.
type ProfileVerifier interface {
	Name() string
	Verify(ctx context.Context, accessToken string) (*Profile, error)
}

// Kind selects a ProfileVerifier implementation.
type Kind string

const (
	KindGraph Kind = "graph"
	KindOIDC  Kind = "oidc"
)

// Config describes the single external provider accepted by the gateway.
type Config struct {
	Kind Kind
	// Name is the provider label stored on linked identities (e.g. "facebook").
	Name string
	// Endpoint is the profile URL for KindGraph.
	Endpoint string
	// Issuer is the OIDC issuer URL for KindOIDC.
	Issuer     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// New builds the verifier described by cfg.
func New(cfg Config) (ProfileVerifier, error) {
	switch cfg.Kind {
	case KindGraph:
		return NewGraphVerifier(cfg)
	case KindOIDC:
		return NewOIDCVerifier(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", cfg.Kind)
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return cfg
}

// fetchWithToken performs one GET with accessToken as the bearer credential and
// returns the body of a 2xx response.
func fetchWithToken(ctx context.Context, base *http.Client, url, accessToken string) ([]byte, error) {
	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read profile: %w", ErrUnreachable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
}
