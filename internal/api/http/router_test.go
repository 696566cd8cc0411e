package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/recipe-service/internal/api/http/handlers"
	"github.com/spec-kit/recipe-service/internal/auth"
	"github.com/spec-kit/recipe-service/internal/config"
	"github.com/spec-kit/recipe-service/internal/domain"
	"github.com/spec-kit/recipe-service/internal/observability"
	"github.com/spec-kit/recipe-service/internal/repository"
	"github.com/spec-kit/recipe-service/internal/service"
	"github.com/spec-kit/recipe-service/internal/validation"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type unavailableStore struct {
	repository.CredentialStore
}

func (unavailableStore) FindByIdentifier(context.Context, string) (*domain.Credential, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type testServer struct {
	app     *fiber.App
	codec   *auth.TokenCodec
	subject map[string]string
}

func newTestServer(t *testing.T, store repository.CredentialStore, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	ctx := context.Background()
	if store == nil {
		store = repository.NewMemoryCredentialRepository()
	}

	subjects := map[string]string{}
	for identifier, roles := range map[string][]domain.Role{
		"admin": {domain.RoleAdmin, domain.RoleUser},
		"user":  {domain.RoleUser},
	} {
		hash, err := auth.HashPassword(identifier+"-password", bcrypt.MinCost)
		require.NoError(t, err)
		subjects[identifier] = "subject-" + identifier
		_ = store.Create(ctx, &domain.Credential{
			SubjectID:    subjects[identifier],
			Identifier:   identifier,
			PasswordHash: hash,
			Roles:        roles,
			CreatedAt:    time.Now().UTC(),
		})
	}

	ring, err := auth.NewKeyRing([]byte(testSecret))
	require.NoError(t, err)
	codec := auth.NewTokenCodec(ring, "recipe-service")
	metrics := observability.NewMetrics()

	authService, err := service.NewAuthService(config.AuthConfig{
		AccessTokenTTLSeconds: 3600,
		BcryptCost:            bcrypt.MinCost,
		StoreTimeoutMillis:    200,
	}, service.AuthDependencies{Credentials: store, Codec: codec, Recorder: metrics})
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, MiddlewareConfig{Timeout: 5 * time.Second, AllowedOrigins: "*"})
	RegisterRoutes(app, RouteConfig{
		Health:        handlers.NewHealthHandler("recipe-service", "test", deps),
		Auth:          handlers.NewAuthHandler(authService, validation.New()),
		Users:         handlers.NewUsersHandler(authService),
		Authenticator: auth.NewAuthenticator(codec, nil, metrics),
		Gate:          auth.NewGate(nil, nil, metrics),
		Metrics:       metrics,
	})
	return &testServer{app: app, codec: codec, subject: subjects}
}

type response struct {
	status  int
	headers map[string]string
	body    map[string]any
	raw     string
}

func (s *testServer) do(t *testing.T, method, path, token, body string) response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, raw: string(raw), headers: map[string]string{}}
	for _, h := range []string{fiber.HeaderRetryAfter, fiber.HeaderWWWAuthenticate, observability.RequestIDHeader} {
		out.headers[h] = resp.Header.Get(h)
	}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func (s *testServer) login(t *testing.T, identifier string) string {
	t.Helper()
	resp := s.do(t, fiber.MethodPost, "/api/auth/login", "",
		`{"identifier":"`+identifier+`","password":"`+identifier+`-password"}`)
	require.Equal(t, fiber.StatusOK, resp.status, resp.raw)
	data := resp.body["data"].(map[string]any)
	assert.Equal(t, "Bearer", data["token_type"])
	return data["token"].(string)
}

func tamperSignature(token string) string {
	i := strings.LastIndex(token, ".") + 10
	replacement := "A"
	if token[i] == 'A' {
		replacement = "B"
	}
	return token[:i] + replacement + token[i+1:]
}

func errorCode(t *testing.T, resp response) string {
	t.Helper()
	errBody, ok := resp.body["error"].(map[string]any)
	require.True(t, ok, resp.raw)
	return errBody["code"].(string)
}

func TestRoutes_LoginThenMe(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.login(t, "user")

	resp := s.do(t, fiber.MethodGet, "/api/me", token, "")
	require.Equal(t, fiber.StatusOK, resp.status, resp.raw)
	data := resp.body["data"].(map[string]any)
	assert.Equal(t, s.subject["user"], data["subject_id"])
	assert.Equal(t, []any{"user"}, data["roles"])
	assert.NotEmpty(t, resp.headers[observability.RequestIDHeader])
}

func TestRoutes_LoginAcceptsUsernameAlias(t *testing.T) {
	s := newTestServer(t, nil, nil)
	resp := s.do(t, fiber.MethodPost, "/api/auth/login", "", `{"username":"admin","password":"admin-password"}`)
	assert.Equal(t, fiber.StatusOK, resp.status, resp.raw)
}

func TestRoutes_UniformUnauthorized(t *testing.T) {
	s := newTestServer(t, nil, nil)
	valid := s.login(t, "user")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
	}{
		{name: "unknown identifier", method: fiber.MethodPost, path: "/api/auth/login", body: `{"identifier":"ghost","password":"whatever"}`},
		{name: "wrong password", method: fiber.MethodPost, path: "/api/auth/login", body: `{"identifier":"user","password":"wrong"}`},
		{name: "no token", method: fiber.MethodGet, path: "/api/me"},
		{name: "garbage token", method: fiber.MethodGet, path: "/api/me", token: "not-a-jwt"},
		{name: "tampered token", method: fiber.MethodGet, path: "/api/me", token: tamperSignature(valid)},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, fiber.StatusUnauthorized, resp.status)
			assert.Equal(t, `Bearer realm="api"`, resp.headers[fiber.HeaderWWWAuthenticate])
			bodies = append(bodies, resp.raw)
		})
	}
	for _, body := range bodies {
		assert.JSONEq(t, `{"error":{"code":"UNAUTHORIZED","message":"unauthorized"}}`, body)
	}
}

func TestRoutes_ExpiredToken(t *testing.T) {
	s := newTestServer(t, nil, nil)
	ring, err := auth.NewKeyRing([]byte(testSecret))
	require.NoError(t, err)
	past := auth.NewTokenCodec(ring, "recipe-service", auth.WithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}))
	token, err := past.Encode(s.subject["user"], []domain.Role{domain.RoleUser}, time.Hour)
	require.NoError(t, err)

	resp := s.do(t, fiber.MethodGet, "/api/me", token.Value, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, resp))
}

func TestRoutes_Authorization(t *testing.T) {
	s := newTestServer(t, nil, nil)
	userToken := s.login(t, "user")
	adminToken := s.login(t, "admin")

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{name: "admin ping as user", path: "/api/admin/ping", token: userToken, status: fiber.StatusForbidden},
		{name: "admin ping as admin", path: "/api/admin/ping", token: adminToken, status: fiber.StatusOK},
		{name: "admin ping anonymous", path: "/api/admin/ping", status: fiber.StatusUnauthorized},
		{name: "own profile", path: "/api/users/" + s.subject["user"], token: userToken, status: fiber.StatusOK},
		{name: "other profile as user", path: "/api/users/" + s.subject["admin"], token: userToken, status: fiber.StatusForbidden},
		{name: "other profile as admin", path: "/api/users/" + s.subject["user"], token: adminToken, status: fiber.StatusOK},
		{name: "missing profile as admin", path: "/api/users/nobody", token: adminToken, status: fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, fiber.MethodGet, tt.path, tt.token, "")
			require.Equal(t, tt.status, resp.status, resp.raw)
			if tt.status == fiber.StatusForbidden {
				assert.JSONEq(t, `{"error":{"code":"FORBIDDEN","message":"forbidden"}}`, resp.raw)
			}
		})
	}
}

func TestRoutes_ProfileHidesPasswordHash(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.login(t, "user")

	resp := s.do(t, fiber.MethodGet, "/api/users/"+s.subject["user"], token, "")
	require.Equal(t, fiber.StatusOK, resp.status)
	assert.NotContains(t, resp.raw, "password")
	assert.NotContains(t, resp.raw, "$2a$")
}

func TestRoutes_StoreUnavailable(t *testing.T) {
	s := newTestServer(t, unavailableStore{CredentialStore: repository.NewMemoryCredentialRepository()}, nil)

	resp := s.do(t, fiber.MethodPost, "/api/auth/login", "", `{"identifier":"user","password":"user-password"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.status)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(t, resp))
	assert.Equal(t, "1", resp.headers[fiber.HeaderRetryAfter])
	assert.NotContains(t, resp.raw, "connection refused")
}

func TestRoutes_Register(t *testing.T) {
	s := newTestServer(t, nil, nil)

	resp := s.do(t, fiber.MethodPost, "/api/auth/register", "", `{"identifier":"alice","password":"correct horse"}`)
	require.Equal(t, fiber.StatusCreated, resp.status, resp.raw)
	data := resp.body["data"].(map[string]any)
	assert.Equal(t, "alice", data["identifier"])
	assert.Equal(t, []any{"user"}, data["roles"])

	resp = s.do(t, fiber.MethodPost, "/api/auth/register", "", `{"identifier":"alice","password":"correct horse"}`)
	assert.Equal(t, fiber.StatusConflict, resp.status)

	resp = s.do(t, fiber.MethodPost, "/api/auth/login", "", `{"identifier":"alice","password":"correct horse"}`)
	assert.Equal(t, fiber.StatusOK, resp.status)
}

func TestRoutes_Validation(t *testing.T) {
	s := newTestServer(t, nil, nil)

	tests := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{name: "login missing password", path: "/api/auth/login", body: `{"identifier":"user"}`, field: "password"},
		{name: "register short password", path: "/api/auth/register", body: `{"identifier":"bob","password":"short"}`, field: "password"},
		{name: "register bad identifier", path: "/api/auth/register", body: `{"identifier":"bad id!","password":"long enough"}`, field: "identifier"},
		{name: "register multibyte password over bcrypt limit", path: "/api/auth/register", body: `{"identifier":"chef","password":"` + strings.Repeat("€", 30) + `"}`, field: "password"},
		{name: "login multibyte password over bcrypt limit", path: "/api/auth/login", body: `{"identifier":"user","password":"` + strings.Repeat("€", 30) + `"}`, field: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, fiber.MethodPost, tt.path, "", tt.body)
			require.Equal(t, fiber.StatusBadRequest, resp.status, resp.raw)
			assert.Equal(t, "VALIDATION_FAILED", errorCode(t, resp))
			assert.Contains(t, resp.raw, `"`+tt.field+`"`)
		})
	}

	resp := s.do(t, fiber.MethodPost, "/api/auth/login", "", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
}

func TestRoutes_Logout(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.login(t, "user")

	assert.Equal(t, fiber.StatusNoContent, s.do(t, fiber.MethodPost, "/api/auth/logout", token, "").status)
	assert.Equal(t, fiber.StatusNoContent, s.do(t, fiber.MethodPost, "/api/auth/logout", "", "").status)
}

func TestRoutes_Health(t *testing.T) {
	s := newTestServer(t, nil, map[string]handlers.Pinger{"redis": pinger{}})
	assert.Equal(t, fiber.StatusOK, s.do(t, fiber.MethodGet, "/", "", "").status)
	assert.Equal(t, fiber.StatusOK, s.do(t, fiber.MethodGet, "/health", "", "").status)
	assert.Equal(t, fiber.StatusOK, s.do(t, fiber.MethodGet, "/health/live", "", "").status)
	assert.Equal(t, fiber.StatusOK, s.do(t, fiber.MethodGet, "/health/ready", "", "").status)

	down := newTestServer(t, nil, map[string]handlers.Pinger{"redis": pinger{err: errors.New("down")}})
	resp := down.do(t, fiber.MethodGet, "/health/ready", "", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(t, resp))
}

func TestRoutes_MetricsExposeAuthOutcomes(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.do(t, fiber.MethodGet, "/api/me", "", "")

	resp := s.do(t, fiber.MethodGet, "/metrics", "", "")
	require.Equal(t, fiber.StatusOK, resp.status)
	assert.Contains(t, resp.raw, "recipe_service_auth_outcomes_total")
	assert.Contains(t, resp.raw, `result="missing_token"`)
}

func TestRoutes_UnknownRoute(t *testing.T) {
	s := newTestServer(t, nil, nil)
	resp := s.do(t, fiber.MethodGet, "/api/nope", "", "")
	assert.Equal(t, fiber.StatusNotFound, resp.status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))
}
