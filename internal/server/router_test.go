package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/confusion-labs/gateway/internal/auth"
	"github.com/confusion-labs/gateway/internal/db/dbtest"
	"github.com/confusion-labs/gateway/internal/origin"
	"github.com/confusion-labs/gateway/internal/provider"
	"github.com/confusion-labs/gateway/internal/ratelimit"
	"github.com/confusion-labs/gateway/internal/repository"
	"github.com/confusion-labs/gateway/internal/services/iam"
	"github.com/confusion-labs/gateway/internal/validation"
)

type testEnv struct {
	handler http.Handler
	repo    *repository.BunIdentityRepository
	graph   *httptest.Server
}

func newTestEnv(t *testing.T, loginRequests int) *testEnv {
	t.Helper()

	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer fb-good":
			_, _ = w.Write([]byte(`{"id":"fb-77","name":"Bob Jones","first_name":"Bob","last_name":"Jones"}`))
		case "Bearer fb-down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(graph.Close)

	repo := repository.NewBunIdentityRepository(dbtest.NewSQLite(t))
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	codec, err := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"), auth.DefaultTokenTTL)
	require.NoError(t, err)
	verifier, err := provider.NewGraphVerifier(provider.Config{Name: "facebook", Endpoint: graph.URL + "/me", Timeout: 2 * time.Second})
	require.NoError(t, err)
	enforcer, err := auth.InitEnforcer()
	require.NoError(t, err)
	validator, err := validation.NewSchemaValidator(0)
	require.NoError(t, err)
	limiter, err := ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
	require.NoError(t, err)

	dispatcher := iam.NewDispatcher(
		iam.NewCredentialVerifier(repo, hasher),
		codec,
		iam.NewProviderBridge(verifier, repo),
		repo,
	)

	handler := NewRouter(RouterOptions{
		Users:            NewUsersHandler(dispatcher, repo, hasher),
		Dispatcher:       dispatcher,
		Gate:             iam.NewGate(enforcer),
		Validator:        validator,
		Origins:          origin.NewPolicy(origin.DefaultAllowedOrigins),
		ExternalProvider: DefaultExternalProvider,
		LoginLimiter:     limiter,
		LoginRequests:    loginRequests,
		LoginWindow:      time.Minute,
	})

	return &testEnv{handler: handler, repo: repo, graph: graph}
}

type call struct {
	method string
	path   string
	body   string
	token  string
	origin string
	header map[string]string
}

func (e *testEnv) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func (e *testEnv) signup(t *testing.T, username, password string) {
	t.Helper()
	rec, body := e.do(t, call{method: http.MethodPost, path: "/users/signup", body: `{"username":"` + username + `","password":"` + password + `"}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, body["success"])
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec, body := e.do(t, call{method: http.MethodPost, path: "/users/login", body: `{"username":"` + username + `","password":"` + password + `"}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t, 0)

	rec, body := env.do(t, call{method: http.MethodPost, path: "/users/signup", body: `{"username":"alice","password":"correct","firstname":"Alice"}`})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "status": "Registration Successful!"}, body)

	stored, err := env.repo.FindByHandle(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.GivenName)
	assert.NotEqual(t, "correct", *stored.PasswordHash)

	rec, body = env.do(t, call{method: http.MethodPost, path: "/users/signup", body: `{"username":"alice","password":"other"}`})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Registration unsuccessful", body["status"])

	rec, body = env.do(t, call{method: http.MethodPost, path: "/users/signup", body: `{"username":"carol"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, 0)
	env.signup(t, "alice", "correct")

	token := env.login(t, "alice", "correct")
	assert.Len(t, strings.Split(token, "."), 3)

	wrongRec, wrongBody := env.do(t, call{method: http.MethodPost, path: "/users/login", body: `{"username":"alice","password":"wrong"}`})
	unknownRec, unknownBody := env.do(t, call{method: http.MethodPost, path: "/users/login", body: `{"username":"nobody","password":"correct"}`})

	assert.Equal(t, http.StatusUnauthorized, wrongRec.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownRec.Code)
	assert.Equal(t, map[string]any{"success": false, "status": "Login unsuccessful", "err": "Invalid credentials"}, wrongBody)
	assert.Equal(t, wrongBody, unknownBody, "unknown handle and wrong password are indistinguishable")

	rec, _ := env.do(t, call{method: http.MethodPost, path: "/users/login", body: `{"username":"alice"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupAndLogin_FormEncoded(t *testing.T) {
	env := newTestEnv(t, 0)
	formHeader := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

	rec, body := env.do(t, call{method: http.MethodPost, path: "/users/signup", body: "username=dana&password=correct&lastname=Reyes", header: formHeader})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])

	stored, err := env.repo.FindByHandle(context.Background(), "dana")
	require.NoError(t, err)
	assert.Equal(t, "Reyes", stored.FamilyName)

	rec, body = env.do(t, call{method: http.MethodPost, path: "/users/login", body: "username=dana&password=correct", header: formHeader})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, body["token"])

	rec, _ = env.do(t, call{method: http.MethodPost, path: "/users/login", body: "username=dana", header: formHeader})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_Throttled(t *testing.T) {
	env := newTestEnv(t, 2)
	env.signup(t, "alice", "correct")

	for range 2 {
		rec, _ := env.do(t, call{method: http.MethodPost, path: "/users/login", body: `{"username":"alice","password":"wrong"}`})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, _ := env.do(t, call{method: http.MethodPost, path: "/users/login", body: `{"username":"alice","password":"correct"}`})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLogin_ThrottleIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, 2)
	env.signup(t, "alice", "correct")

	codes := make([]int, 0, 3)
	for _, spoofed := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		rec, _ := env.do(t, call{
			method: http.MethodPost,
			path:   "/users/login",
			body:   `{"username":"alice","password":"wrong"}`,
			header: map[string]string{"X-Forwarded-For": spoofed, "X-Real-IP": spoofed, "True-Client-IP": spoofed},
		})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestCheckJWTToken(t *testing.T) {
	env := newTestEnv(t, 0)
	env.signup(t, "alice", "correct")
	token := env.login(t, "alice", "correct")

	rec, body := env.do(t, call{method: http.MethodGet, path: "/users/checkJWTToken", token: token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "JWT valid!", body["status"])
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password_hash")

	rec, body = env.do(t, call{method: http.MethodGet, path: "/users/checkJWTToken", token: token + "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"status": "JWT invalid!", "success": false}, body)

	rec, _ = env.do(t, call{method: http.MethodGet, path: "/users/checkJWTToken"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutes(t *testing.T) {
	env := newTestEnv(t, 0)
	env.signup(t, "alice", "correct")
	env.signup(t, "root", "secret")
	aliceToken := env.login(t, "alice", "correct")
	rootToken := env.login(t, "root", "secret")

	rec, _ := env.do(t, call{method: http.MethodGet, path: "/users/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec, body := env.do(t, call{method: http.MethodGet, path: "/users/me", token: aliceToken})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, false, body["admin"])

	rec, body = env.do(t, call{method: http.MethodGet, path: "/users", token: aliceToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "status": "You are not authorized to perform this operation!"}, body)

	// Promotion is read from the live identity, so the outstanding token picks it up.
	root, err := env.repo.FindByHandle(context.Background(), "root")
	require.NoError(t, err)
	root.Elevated = true
	require.NoError(t, env.repo.Save(context.Background(), root))

	rec, _ = env.do(t, call{method: http.MethodGet, path: "/users", token: rootToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var users []UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.True(t, users[1].Admin)
}

func TestExternalToken(t *testing.T) {
	env := newTestEnv(t, 0)

	rec, body := env.do(t, call{method: http.MethodGet, path: "/users/facebook/token?access_token=fb-good"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "You are successfully logged in!", body["status"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	rec, body = env.do(t, call{method: http.MethodGet, path: "/users/me", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bob Jones", body["username"])
	assert.Equal(t, "facebook", body["provider"])

	rec, _ = env.do(t, call{method: http.MethodGet, path: "/users/facebook/token", header: map[string]string{"access_token": "fb-good"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	all, err := env.repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	rec, body = env.do(t, call{method: http.MethodGet, path: "/users/facebook/token?access_token=stolen"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid access token", body["err"])
	assert.Empty(t, rec.Header().Get("Retry-After"))

	rec, body = env.do(t, call{method: http.MethodGet, path: "/users/facebook/token?access_token=fb-down"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "identity provider unavailable, try again", body["err"])
	assert.Equal(t, providerRetryAfter, rec.Header().Get("Retry-After"))

	rec, _ = env.do(t, call{method: http.MethodGet, path: "/users/facebook/token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOriginPolicyIsOrthogonalToAuth(t *testing.T) {
	env := newTestEnv(t, 0)
	env.signup(t, "alice", "correct")

	rec, body := env.do(t, call{
		method: http.MethodPost,
		path:   "/users/login",
		body:   `{"username":"alice","password":"correct"}`,
		origin: "http://evil.example",
	})
	assert.Equal(t, http.StatusOK, rec.Code, "identity checks still run")
	assert.NotEmpty(t, body["token"])
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = env.do(t, call{
		method: http.MethodPost,
		path:   "/users/login",
		body:   `{"username":"alice","password":"wrong"}`,
		origin: "http://localhost:3000",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = env.do(t, call{method: http.MethodGet, path: "/users/facebook/token?access_token=fb-good", origin: "http://evil.example"})
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"), "external token route is open")
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t, 0)

	for _, path := range []string{"/users/login", "/users/signup", "/users/me"} {
		rec, _ := env.do(t, call{
			method: http.MethodOptions,
			path:   path,
			origin: "https://localhost:3443",
			header: map[string]string{"Access-Control-Request-Method": http.MethodPost},
		})
		assert.Less(t, rec.Code, 300, path)
		assert.Equal(t, "https://localhost:3443", rec.Header().Get("Access-Control-Allow-Origin"), path)

		rec, _ = env.do(t, call{
			method: http.MethodOptions,
			path:   path,
			origin: "http://evil.example",
			header: map[string]string{"Access-Control-Request-Method": http.MethodPost},
		})
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), path)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)
	rec, _ := env.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHTTPSRedirect(t *testing.T) {
	h := NewHTTPSRedirectHandler(":3443")

	req := httptest.NewRequest(http.MethodPost, "http://localhost:3000/users/login?x=1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://localhost:3443/users/login?x=1", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "http://example.com/health", nil)
	rec = httptest.NewRecorder()
	NewHTTPSRedirectHandler("0.0.0.0:443").ServeHTTP(rec, req)
	assert.Equal(t, "https://example.com/health", rec.Header().Get("Location"))
}
