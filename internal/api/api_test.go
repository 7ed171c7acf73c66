package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/joescharf/codelens/internal/auth"
	"github.com/joescharf/codelens/internal/models"
	"github.com/joescharf/codelens/internal/review"
	"github.com/joescharf/codelens/internal/stats"
	"github.com/joescharf/codelens/internal/store"
)

const validOutput = `{"issues":[{"category":"Code Quality","severity":"LOW","title":"t","description":"d","explanation":"e"}],"severityScore":80}`

// stubGateway returns a fixed response and counts calls.
type stubGateway struct {
	mu    sync.Mutex
	out   string
	err   error
	calls int
}

func (g *stubGateway) Generate(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.out, g.err
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// tokenVerifier maps tokens to users; unknown tokens are rejected.
type tokenVerifier map[string]string

func (v tokenVerifier) Verify(_ context.Context, token string) (models.Identity, error) {
	uid, ok := v[token]
	if !ok {
		return models.Identity{}, auth.ErrInvalidCredential
	}
	return models.Identity{UID: uid, Email: uid + "@example.com"}, nil
}

type testEnv struct {
	router http.Handler
	store  store.Store
	gw     *stubGateway
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	logger := zaptest.NewLogger(t)
	gw := &stubGateway{out: validOutput}
	svc := review.NewService(gw, s, logger)
	v := tokenVerifier{"alice-token": "alice", "bob-token": "bob"}
	srv := NewServer(svc, v, logger, Options{BasePath: "/api"})

	return &testEnv{router: srv.Router(), store: s, gw: gw}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) count(t *testing.T, uid string) int {
	t.Helper()
	reviews, err := e.store.ListReviews(context.Background(), uid)
	require.NoError(t, err)
	return len(reviews)
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

const submitBody = `{"code":"function f(x){return x+1}","language":"JavaScript","context":"Utility"}`

func TestHealth_NoAuth(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateReview_API(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/reviews", "alice-token", submitBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Review
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.UserID)
	assert.Equal(t, "function f(x){return x+1}", created.OriginalCode)
	assert.Equal(t, 80, created.SeverityScore)
	assert.False(t, created.CreatedAt.IsZero())
	require.Len(t, created.Issues, 1)
	assert.NotEmpty(t, created.Issues[0].ID)

	// Client-facing issue id field.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	issues := raw["issues"].([]any)
	assert.Contains(t, issues[0].(map[string]any), "id")

	// Round trip through GET returns the same document.
	w = env.do(t, "GET", "/api/reviews/"+created.ID, "alice-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Review
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Issues, got.Issues)
	assert.Equal(t, created.SeverityScore, got.SeverityScore)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestCreateReview_Unauthorized(t *testing.T) {
	env := setupTestServer(t)

	for _, token := range []string{"", "forged"} {
		w := env.do(t, "POST", "/api/reviews", token, submitBody)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	assert.Equal(t, 0, env.gw.callCount())
}

func TestCreateReview_MissingCode(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/reviews", "alice-token", `{"language":"Go","context":"API"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Code is required", errorMessage(t, w))
	assert.Equal(t, 0, env.gw.callCount())
	assert.Equal(t, 0, env.count(t, "alice"))
}

func TestCreateReview_InvalidBody(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/reviews", "alice-token", `{"code":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON", errorMessage(t, w))
	assert.Equal(t, 0, env.gw.callCount())
}

func TestCreateReview_BodyTooLarge(t *testing.T) {
	env := setupTestServer(t)

	big := `{"code":"` + strings.Repeat("a", DefaultMaxBodyBytes+1) + `"}`
	w := env.do(t, "POST", "/api/reviews", "alice-token", big)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.gw.callCount())
}

func TestCreateReview_MalformedModelOutput(t *testing.T) {
	for _, out := range []string{"not valid json at all", `{"severityScore":80}`} {
		t.Run(out, func(t *testing.T) {
			env := setupTestServer(t)
			env.gw.out = out

			w := env.do(t, "POST", "/api/reviews", "alice-token", submitBody)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, "Failed to analyze code", errorMessage(t, w))
			assert.NotContains(t, w.Body.String(), out)
			assert.Equal(t, 0, env.count(t, "alice"))
		})
	}
}

func TestListReviews_API(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "GET", "/api/reviews", "alice-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/reviews", "alice-token", submitBody).Code)
	}
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/reviews", "bob-token", submitBody).Code)

	w = env.do(t, "GET", "/api/reviews", "alice-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	var reviews []*models.Review
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reviews))
	assert.Len(t, reviews, 2)
	for _, r := range reviews {
		assert.Equal(t, "alice", r.UserID)
	}
	assert.False(t, reviews[0].CreatedAt.Before(reviews[1].CreatedAt))

	assert.Equal(t, http.StatusUnauthorized, env.do(t, "GET", "/api/reviews", "", "").Code)
}

func TestGetReview_NotFoundIsIndistinguishable(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/reviews", "bob-token", submitBody)
	require.Equal(t, http.StatusCreated, w.Code)
	var bobs models.Review
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bobs))

	foreign := env.do(t, "GET", "/api/reviews/"+bobs.ID, "alice-token", "")
	missing := env.do(t, "GET", "/api/reviews/01HZZZZZZZZZZZZZZZZZZZZZZZ", "alice-token", "")

	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, foreign.Body.String(), missing.Body.String())
	assert.Equal(t, "Review not found", errorMessage(t, foreign))
}

func TestReviewStats_API(t *testing.T) {
	env := setupTestServer(t)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/reviews", "alice-token", submitBody).Code)
	}

	w := env.do(t, "GET", "/api/reviews/stats", "alice-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	var s stats.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, 3, s.TotalReviews)
	assert.Equal(t, 80, s.AvgSeverityScore)
	assert.Equal(t, 3, s.IssuesByCategory[models.CategoryCodeQuality])
	assert.Equal(t, 3, s.SeverityDistribution[models.SeverityLow])
	assert.Len(t, s.RecentReviews, 3)

	w = env.do(t, "GET", "/api/reviews/stats", "bob-token", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, 0, s.TotalReviews)
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "OPTIONS", "/api/reviews", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRequestID(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "GET", "/health", "", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestNewServer_BasePath(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "b.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	svc := review.NewService(&stubGateway{out: validOutput}, s, nil)
	router := NewServer(svc, tokenVerifier{"t": "u"}, nil, Options{BasePath: "/v2/"}).Router()

	req := httptest.NewRequest("GET", "/v2/reviews", nil)
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
