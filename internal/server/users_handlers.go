package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/confusion-labs/gateway/internal/auth"
	"github.com/confusion-labs/gateway/internal/db/models"
	"github.com/confusion-labs/gateway/internal/middleware"
	"github.com/confusion-labs/gateway/internal/repository"
	"github.com/confusion-labs/gateway/internal/services/iam"
)

// SignupRequest is the body of POST /users/signup.
type SignupRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// UserResponse is the public view of an identity.
type UserResponse struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Admin     bool   `json:"admin"`
	Provider  string `json:"provider,omitempty"`
}

func userFromPrincipal(p *iam.Principal) UserResponse {
	return UserResponse{
		ID:        p.ID,
		Username:  p.Handle,
		FirstName: p.GivenName,
		LastName:  p.FamilyName,
		Admin:     p.IsElevated(),
		Provider:  p.Provider,
	}
}

func userFromIdentity(i *models.Identity) UserResponse {
	return userFromPrincipal(iam.NewPrincipal(i))
}

// UsersHandler serves the /users routes.
type UsersHandler struct {
	dispatcher *iam.Dispatcher
	identities repository.IdentityRepository
	hasher     *auth.PasswordHasher
	logger     *slog.Logger
}

// NewUsersHandler creates the handler set for /users.
func NewUsersHandler(dispatcher *iam.Dispatcher, identities repository.IdentityRepository, hasher *auth.PasswordHasher) *UsersHandler {
	return &UsersHandler{
		dispatcher: dispatcher,
		identities: identities,
		hasher:     hasher,
		logger:     slog.Default().With("component", "users"),
	}
}

// Signup registers a password identity from a JSON or form-encoded body. The
// body has already passed schema validation.
func (h *UsersHandler) Signup(w http.ResponseWriter, r *http.Request) {
	fields, err := middleware.BodyFields(r)
	if err != nil {
		invalidPayload("Registration unsuccessful")(w, r, err)
		return
	}
	req := SignupRequest{
		Username:  fields["username"],
		Password:  fields["password"],
		FirstName: fields["firstname"],
		LastName:  fields["lastname"],
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "hash password", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "status": msgInternal})
		return
	}

	identity := &models.Identity{
		Handle:       req.Username,
		PasswordHash: &hash,
		GivenName:    req.FirstName,
		FamilyName:   req.LastName,
	}
	if err := h.identities.Create(r.Context(), identity); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"success": false,
				"status":  "Registration unsuccessful",
				"err":     "A user with the given username is already registered",
			})
			return
		}
		h.logger.ErrorContext(r.Context(), "create identity", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "status": msgInternal})
		return
	}

	h.logger.InfoContext(r.Context(), "identity registered", "identity_id", identity.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "Registration Successful!"})
}

// Login issues a token for the Principal resolved by the password strategy.
func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, "Login successful")
}

// ExternalToken issues a token for the Principal resolved by the external strategy.
func (h *UsersHandler) ExternalToken(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, "You are successfully logged in!")
}

func (h *UsersHandler) issue(w http.ResponseWriter, r *http.Request, status string) {
	principal, ok := iam.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, iam.StrategyBearer, iam.ErrMissingToken)
		return
	}

	token, err := h.dispatcher.IssueToken(principal)
	if err != nil {
		writeAuthError(w, r, iam.StrategyBearer, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": status, "token": token})
}

// CheckToken reports whether the presented bearer token is currently valid.
func (h *UsersHandler) CheckToken(w http.ResponseWriter, r *http.Request) {
	principal, err := h.dispatcher.Authenticate(r.Context(), iam.BearerCredentials{Token: middleware.BearerToken(r)})
	if err != nil {
		if _, ok := iam.FailureKindOf(err); !ok {
			writeAuthError(w, r, iam.StrategyBearer, err)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "JWT invalid!", "success": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "JWT valid!",
		"success": true,
		"user":    userFromPrincipal(principal),
	})
}

// Me returns the caller's own identity.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := iam.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, iam.StrategyBearer, iam.ErrMissingToken)
		return
	}
	writeJSON(w, http.StatusOK, userFromPrincipal(principal))
}

// List returns every identity. Mounted behind the elevated level.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.identities.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list identities", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "status": msgInternal})
		return
	}

	users := make([]UserResponse, 0, len(identities))
	for i := range identities {
		users = append(users, userFromIdentity(&identities[i]))
	}
	writeJSON(w, http.StatusOK, users)
}
