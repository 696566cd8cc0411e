package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/recipe-service/internal/domain"
)

type recordedOutcome struct {
	stage  string
	result string
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
}

func (r *outcomeRecorder) RecordAuthOutcome(stage, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, recordedOutcome{stage: stage, result: result})
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	switch {
	case KindOf(err) == KindForbidden:
		return c.SendStatus(http.StatusForbidden)
	case IsAuthenticationFailure(err):
		return c.SendStatus(http.StatusUnauthorized)
	}
	return fiber.DefaultErrorHandler(c, err)
}

func newAuthApp(t *testing.T) (*fiber.App, *TokenCodec, *testClock, *outcomeRecorder) {
	t.Helper()
	codec, _, clock := newTestCodec(t)
	recorder := &outcomeRecorder{}
	authn := NewAuthenticator(codec, nil, recorder)

	identityHandler := func(c *fiber.Ctx) error {
		identity, ok := CurrentIdentity(c)
		return c.JSON(fiber.Map{"authenticated": ok, "subject_id": identity.SubjectID})
	}

	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	app.Get("/private", authn.Require(), identityHandler)
	app.Get("/public", authn.Optional(), identityHandler)
	return app, codec, clock, recorder
}

func doRequest(t *testing.T, app *fiber.App, path, authHeader string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body
}

func TestAuthenticator_Evaluate(t *testing.T) {
	codec, _, clock := newTestCodec(t)
	authn := NewAuthenticator(codec, nil, nil)

	issued, err := codec.Encode("sub-1", []domain.Role{domain.RoleUser}, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name     string
		header   string
		required bool
		at       time.Time
		token    TokenState
		outcome  Outcome
		kind     Kind
	}{
		{name: "no token required", header: "", required: true, at: t0, token: TokenAbsent, outcome: OutcomeRejected, kind: KindMissingToken},
		{name: "no token public", header: "", required: false, at: t0, token: TokenAbsent, outcome: OutcomeAnonymous, kind: KindMissingToken},
		{name: "wrong scheme", header: "Basic abc", required: true, at: t0, token: TokenInvalid, outcome: OutcomeRejected, kind: KindMalformed},
		{name: "empty bearer", header: "Bearer ", required: true, at: t0, token: TokenInvalid, outcome: OutcomeRejected, kind: KindMalformed},
		{name: "garbage", header: "Bearer garbage", required: true, at: t0, token: TokenInvalid, outcome: OutcomeRejected, kind: KindMalformed},
		{name: "valid", header: "Bearer " + issued.Value, required: true, at: t0.Add(59 * time.Minute), token: TokenValid, outcome: OutcomeAuthenticated},
		{name: "lowercase scheme", header: "bearer " + issued.Value, required: true, at: t0, token: TokenValid, outcome: OutcomeAuthenticated},
		{name: "expired", header: "Bearer " + issued.Value, required: true, at: t0.Add(61 * time.Minute), token: TokenExpired, outcome: OutcomeRejected, kind: KindExpired},
		{name: "expired public", header: "Bearer " + issued.Value, required: false, at: t0.Add(61 * time.Minute), token: TokenExpired, outcome: OutcomeAnonymous, kind: KindExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock.Set(tc.at)
			ev := authn.Evaluate(tc.header, tc.required)
			assert.Equal(t, tc.token, ev.Token)
			assert.Equal(t, tc.outcome, ev.Outcome)
			if tc.kind == 0 {
				assert.NoError(t, ev.Err)
				assert.Equal(t, "sub-1", ev.Identity.SubjectID)
			} else {
				assert.Equal(t, tc.kind, KindOf(ev.Err))
				assert.Empty(t, ev.Identity.SubjectID)
			}
		})
	}
}

func TestAuthenticator_EvaluateIsIdempotent(t *testing.T) {
	codec, _, _ := newTestCodec(t)
	authn := NewAuthenticator(codec, nil, nil)
	issued, err := codec.Encode("sub-1", []domain.Role{domain.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	first := authn.Evaluate("Bearer "+issued.Value, true)
	second := authn.Evaluate("Bearer "+issued.Value, true)
	assert.Equal(t, first, second)
}

func TestAuthenticator_Middleware(t *testing.T) {
	app, codec, clock, recorder := newAuthApp(t)
	issued, err := codec.Encode("sub-1", []domain.Role{domain.RoleUser}, time.Hour)
	require.NoError(t, err)

	status, body := doRequest(t, app, "/private", "Bearer "+issued.Value)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "sub-1", body["subject_id"])

	status, _ = doRequest(t, app, "/private", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = doRequest(t, app, "/public", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["authenticated"])

	clock.Set(t0.Add(2 * time.Hour))
	status, _ = doRequest(t, app, "/private", "Bearer "+issued.Value)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = doRequest(t, app, "/public", "Bearer "+issued.Value)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["authenticated"])

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Len(t, recorder.outcomes, 5)
	assert.Equal(t, recordedOutcome{stage: "authenticate", result: "authenticated"}, recorder.outcomes[0])
	assert.Equal(t, recordedOutcome{stage: "authenticate", result: "missing_token"}, recorder.outcomes[1])
	assert.Equal(t, recordedOutcome{stage: "authenticate", result: "expired"}, recorder.outcomes[3])
}

func TestAuthenticator_ConcurrentRequestsResolveSameIdentity(t *testing.T) {
	app, codec, _, _ := newAuthApp(t)
	issued, err := codec.Encode("sub-42", []domain.Role{domain.RoleUser}, time.Hour)
	require.NoError(t, err)

	const requests = 16
	subjects := make([]any, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			req.Header.Set("Authorization", "Bearer "+issued.Value)
			resp, err := app.Test(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			body := map[string]any{}
			if json.NewDecoder(resp.Body).Decode(&body) == nil {
				subjects[i] = body["subject_id"]
			}
		}(i)
	}
	wg.Wait()

	for _, s := range subjects {
		assert.Equal(t, "sub-42", s)
	}
}

func TestIdentityFromContext(t *testing.T) {
	_, ok := IdentityFromContext(nil) //nolint:staticcheck
	assert.False(t, ok)

	identity := domain.Identity{SubjectID: "sub-1", Roles: []domain.Role{domain.RoleUser}}
	ctx := WithIdentity(t.Context(), identity)
	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, identity, got)
}
