package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mitchellh/mapstructure"
)

// graphFields is the field selection requested from Graph-style profile endpoints.
const graphFields = "id,name,first_name,last_name"

// graphProfile is the subset of a Graph-style profile the gateway uses.
// Numeric ids are accepted and stringified.
type graphProfile struct {
	ID        string `mapstructure:"id"`
	Name      any    `mapstructure:"name"`
	FirstName string `mapstructure:"first_name"`
	LastName  string `mapstructure:"last_name"`
}

// structuredName is the {givenName, familyName} shape some providers nest under "name".
type structuredName struct {
	GivenName  string `mapstructure:"givenName"`
	FamilyName string `mapstructure:"familyName"`
	Formatted  string `mapstructure:"formatted"`
}

// GraphVerifier verifies tokens against a Graph-style "me" endpoint
// (e.g. https://graph.facebook.com/v19.0/me).
type GraphVerifier struct {
	name       string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewGraphVerifier creates a verifier for cfg.Endpoint.
func NewGraphVerifier(cfg Config) (*GraphVerifier, error) {
	cfg = withDefaults(cfg)
	if cfg.Name == "" {
		return nil, errors.New("provider name is required")
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid provider endpoint %q", cfg.Endpoint)
	}
	q := endpoint.Query()
	if q.Get("fields") == "" {
		q.Set("fields", graphFields)
	}
	endpoint.RawQuery = q.Encode()

	return &GraphVerifier{
		name:       cfg.Name,
		endpoint:   endpoint.String(),
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}, nil
}

// Name returns the provider label.
func (v *GraphVerifier) Name() string {
	return v.name
}

// Verify fetches the profile owned by accessToken.
func (v *GraphVerifier) Verify(ctx context.Context, accessToken string) (*Profile, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	body, err := fetchWithToken(ctx, v.httpClient, v.endpoint, accessToken)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrRejected, err)
	}

	var gp graphProfile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &gp,
	})
	if err != nil {
		return nil, fmt.Errorf("build profile decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrRejected, err)
	}

	if gp.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", ErrRejected)
	}

	profile := &Profile{
		Provider:   v.name,
		ProviderID: gp.ID,
		GivenName:  gp.FirstName,
		FamilyName: gp.LastName,
	}

	switch name := gp.Name.(type) {
	case string:
		profile.DisplayName = name
	case map[string]any:
		var sn structuredName
		if err := mapstructure.Decode(name, &sn); err == nil {
			profile.DisplayName = sn.Formatted
			if profile.GivenName == "" {
				profile.GivenName = sn.GivenName
			}
			if profile.FamilyName == "" {
				profile.FamilyName = sn.FamilyName
			}
		}
	}

	if profile.DisplayName == "" {
		profile.DisplayName = joinName(profile.GivenName, profile.FamilyName)
	}
	if profile.DisplayName == "" {
		return nil, fmt.Errorf("%w: profile has no display name", ErrRejected)
	}

	return profile, nil
}

func joinName(given, family string) string {
	switch {
	case given == "":
		return family
	case family == "":
		return given
	default:
		return given + " " + family
	}
}
