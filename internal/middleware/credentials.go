package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/confusion-labs/gateway/internal/services/iam"
)

// MaxBodyBytes caps request bodies read during credential extraction.
const MaxBodyBytes = 1 << 20

// AccessTokenParam is the query, form, JSON and header name carrying an
// external provider access token.
const AccessTokenParam = "access_token"

// ExtractCredentials reads the credentials for strategy from r. Absent
// credentials produce an empty variant; the dispatcher turns that into the
// matching failure. Request bodies are restored so handlers can read them again.
func ExtractCredentials(r *http.Request, strategy iam.Strategy) (iam.Credentials, error) {
	switch strategy {
	case iam.StrategyPassword:
		fields, err := BodyFields(r)
		if err != nil {
			return nil, err
		}
		return iam.PasswordCredentials{Handle: fields["username"], Password: fields["password"]}, nil

	case iam.StrategyBearer:
		return iam.BearerCredentials{Token: BearerToken(r)}, nil

	case iam.StrategyExternal:
		if token := r.URL.Query().Get(AccessTokenParam); token != "" {
			return iam.ExternalCredentials{AccessToken: token}, nil
		}
		if token := r.Header.Get(AccessTokenParam); token != "" {
			return iam.ExternalCredentials{AccessToken: token}, nil
		}
		fields, err := BodyFields(r)
		if err != nil {
			return nil, err
		}
		return iam.ExternalCredentials{AccessToken: fields[AccessTokenParam]}, nil

	default:
		return nil, fmt.Errorf("unsupported strategy %s", strategy)
	}
}

// BearerToken returns the token from "Authorization: Bearer <token>", or "".
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// BodyFields reads string fields from a JSON or form-encoded body. Bodies in
// other formats, or malformed ones, yield no fields.
func BodyFields(r *http.Request) (map[string]string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return map[string]string{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	fields := map[string]string{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return fields, nil
		}
		for k := range values {
			fields[k] = values.Get(k)
		}
	default:
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return fields, nil
		}
		for k, v := range raw {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
	}
	return fields, nil
}
