package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/confusion-labs/gateway/internal/services/iam"
	"github.com/confusion-labs/gateway/internal/validation"
)

// Client-facing messages. Identity failures never say which check failed.
const (
	msgInvalidCredentials  = "Invalid credentials"
	msgInvalidAccessToken  = "Invalid access token"
	msgProviderUnavailable = "identity provider unavailable, try again"
	msgUnauthorized        = "Unauthorized"
	msgForbidden           = "You are not authorized to perform this operation!"
	msgInternal            = "Internal server error"
	msgLoginFailed         = "Login unsuccessful"
)

// providerRetryAfter is the Retry-After value, in seconds, sent when the
// external provider could not be reached.
const providerRetryAfter = "30"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

// writeAuthError maps a dispatcher or gate error to 401, 403 or 500.
func writeAuthError(w http.ResponseWriter, r *http.Request, strategy iam.Strategy, err error) {
	logger := slog.Default().With("component", "http", "method", r.Method, "path", r.URL.Path)

	kind, ok := iam.FailureKindOf(err)
	if !ok {
		logger.ErrorContext(r.Context(), "request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "status": msgInternal})
		return
	}

	logger.InfoContext(r.Context(), "access denied", "strategy", strategy.String(), "reason", string(kind))

	switch kind {
	case iam.FailureInsufficientPrivilege:
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "status": msgForbidden})
		return
	case iam.FailureProviderUnreachable:
		w.Header().Set("Retry-After", providerRetryAfter)
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"status":  msgLoginFailed,
			"err":     msgProviderUnavailable,
		})
		return
	}

	switch strategy {
	case iam.StrategyPassword:
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"status":  msgLoginFailed,
			"err":     msgInvalidCredentials,
		})
	case iam.StrategyExternal:
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"status":  msgLoginFailed,
			"err":     msgInvalidAccessToken,
		})
	default:
		w.Header().Set("WWW-Authenticate", `Bearer realm="gateway"`)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "status": msgUnauthorized})
	}
}

// invalidPayload answers requests rejected by schema validation.
func invalidPayload(status string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		message := "invalid request body"
		var ve *validation.Error
		if errors.As(err, &ve) {
			message = ve.Error()
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"status":  status,
			"err":     message,
		})
	}
}
