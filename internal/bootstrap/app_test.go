package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-tailor/internal/analyses"
	"resume-tailor/internal/shared/config"
)

type scorerFunc func(ctx context.Context, req analyses.ScoreRequest) (json.RawMessage, error)

func (f scorerFunc) Score(ctx context.Context, req analyses.ScoreRequest) (json.RawMessage, error) {
	return f(ctx, req)
}

var (
	appResume = strings.Repeat("Senior Go developer with Postgres, Redis and AWS experience. ", 5)
	appJob    = strings.Repeat("Backend role building Go services on AWS. ", 4)
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Config{
		Env:              "dev",
		LocalStoreDir:    t.TempDir(),
		JWTSecret:        "test-secret",
		GuestCreditTotal: 3,
	}
	scorer := scorerFunc(func(ctx context.Context, req analyses.ScoreRequest) (json.RawMessage, error) {
		return json.RawMessage(`{"score":70,"score_breakdown":{"keywords":70,"semantic":70,"tone":70},
			"keywords":{"missing":[],"present":["go"]},"suggestions":[],"summary":"ok"}`), nil
	})
	app, err := Build(context.Background(), cfg, Options{Scorer: scorer})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func do(t *testing.T, app *App, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	return w
}

func TestBuildDevUsesMemoryBackends(t *testing.T) {
	app := newTestApp(t)
	assert.Nil(t, app.DB)
	assert.Nil(t, app.Redis)
	assert.NotNil(t, app.KV)
	assert.Equal(t, 3, app.UsageService.GuestLimit)

	w := do(t, app, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestProtectedRouteRequiresIdentity(t *testing.T) {
	app := newTestApp(t)
	w := do(t, app, http.MethodGet, "/api/usage", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuestLimitThenSignUpAndClaim(t *testing.T) {
	app := newTestApp(t)
	guest := map[string]string{"X-Guest-Id": uuid.NewString()}
	input := map[string]string{"resume": appResume, "job_description": appJob}

	for i := 0; i < 3; i++ {
		w := do(t, app, http.MethodPost, "/api/analyze", input, guest)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := do(t, app, http.MethodPost, "/api/analyze", input, guest)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "GUEST_LIMIT_REACHED")

	w = do(t, app, http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "new@example.com", "password": "long-enough-pw",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.Token)

	authed := map[string]string{"Authorization": "Bearer " + sess.Token, "X-Guest-Id": guest["X-Guest-Id"]}
	w = do(t, app, http.MethodPost, "/api/subscription/claim", map[string]any{}, authed)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var claim struct {
		MigratedAnalyses int `json:"migratedAnalyses"`
		CreditedUsage    int `json:"creditedUsage"`
		Subscription     struct {
			Tier          string `json:"tier"`
			AnalysesUsed  int    `json:"analyses_used"`
			AnalysesLimit int    `json:"analyses_limit"`
		} `json:"subscription"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claim))
	assert.Equal(t, 3, claim.MigratedAnalyses)
	assert.Equal(t, 3, claim.CreditedUsage)
	assert.Equal(t, "free", claim.Subscription.Tier)
	assert.Equal(t, 3, claim.Subscription.AnalysesUsed)
	assert.Equal(t, 5, claim.Subscription.AnalysesLimit)

	// Crediting happens once per account.
	w = do(t, app, http.MethodPost, "/api/subscription/claim", map[string]any{"guestAnalysesUsed": 3}, authed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"creditedUsage":0`)

	w = do(t, app, http.MethodPost, "/api/analyze", input, authed)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignOutRevokesToken(t *testing.T) {
	app := newTestApp(t)
	w := do(t, app, http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "out@example.com", "password": "long-enough-pw",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	bearer := map[string]string{"Authorization": "Bearer " + sess.Token}

	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/api/subscription", nil, bearer).Code)
	require.Equal(t, http.StatusNoContent, do(t, app, http.MethodPost, "/api/auth/signout", nil, bearer).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, app, http.MethodGet, "/api/subscription", nil, bearer).Code)
}
