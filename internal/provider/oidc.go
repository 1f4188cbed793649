package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client"
	"github.com/zitadel/oidc/v3/pkg/oidc"
)

// OIDCVerifier verifies access tokens by calling the issuer's userinfo endpoint.
// The endpoint is discovered on first use and cached once discovery succeeds.
// Discovery runs under the caller's context with no lock held, so concurrent
// first calls may each discover; the last result wins.
type OIDCVerifier struct {
	name       string
	issuer     string
	timeout    time.Duration
	httpClient *http.Client

	mu               sync.RWMutex
	userinfoEndpoint string
}

// NewOIDCVerifier creates a verifier for cfg.Issuer. No network calls are made here.
func NewOIDCVerifier(cfg Config) (*OIDCVerifier, error) {
	cfg = withDefaults(cfg)
	if cfg.Name == "" {
		return nil, errors.New("provider name is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("provider issuer is required")
	}

	return &OIDCVerifier{
		name:       cfg.Name,
		issuer:     cfg.Issuer,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}, nil
}

// Name returns the provider label.
func (v *OIDCVerifier) Name() string {
	return v.name
}

// Verify resolves accessToken to the userinfo profile of its subject.
func (v *OIDCVerifier) Verify(ctx context.Context, accessToken string) (*Profile, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	endpoint, err := v.endpoint(ctx)
	if err != nil {
		return nil, err
	}

	body, err := fetchWithToken(ctx, v.httpClient, endpoint, accessToken)
	if err != nil {
		return nil, err
	}

	var info oidc.UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", ErrRejected, err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("%w: userinfo has no subject", ErrRejected)
	}

	profile := &Profile{
		Provider:    v.name,
		ProviderID:  info.Subject,
		DisplayName: info.Name,
		GivenName:   info.GivenName,
		FamilyName:  info.FamilyName,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = info.PreferredUsername
	}
	if profile.DisplayName == "" {
		profile.DisplayName = joinName(info.GivenName, info.FamilyName)
	}
	if profile.DisplayName == "" {
		return nil, fmt.Errorf("%w: userinfo has no display name", ErrRejected)
	}

	return profile, nil
}

func (v *OIDCVerifier) endpoint(ctx context.Context) (string, error) {
	v.mu.RLock()
	cached := v.userinfoEndpoint
	v.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	discovery, err := client.Discover(ctx, v.issuer, v.httpClient)
	if err != nil {
		return "", fmt.Errorf("%w: discovery: %w", ErrUnreachable, err)
	}
	if discovery.UserinfoEndpoint == "" {
		return "", fmt.Errorf("%w: issuer %s advertises no userinfo endpoint", ErrUnreachable, v.issuer)
	}

	v.mu.Lock()
	v.userinfoEndpoint = discovery.UserinfoEndpoint
	v.mu.Unlock()
	return discovery.UserinfoEndpoint, nil
}
