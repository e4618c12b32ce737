package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meritlog.org/internal/auth"
	"meritlog.org/internal/entity"
	"meritlog.org/internal/legacy"
	"meritlog.org/internal/session"
	"meritlog.org/internal/tracker"
)

type apiClient struct {
	t        *testing.T
	baseURL  string
	client   *http.Client
	remote   *tracker.InMemory
	store    *entity.Store
	verifier *auth.Verifier
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	remote := tracker.NewInMemory()
	store := entity.New(remote)
	v, err := auth.NewVerifier("test-secret")
	require.NoError(t, err)
	provider := session.NewTokenProvider(v)
	manager := session.NewManager(provider, store, legacy.NewMigrator(legacy.NewMemoryCache(), remote))
	go func() { _ = manager.Run(ctx) }()
	_, err = manager.Await(ctx, func(s session.State) bool { return !s.Resolving })
	require.NoError(t, err)

	api := New(ReadyProbe{Sessions: manager}, "test", Services{
		Remote:   remote,
		Store:    store,
		Sessions: manager,
		Provider: provider,
		Verifier: v,
	}, WithRateLimit(1000, 1000))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{t: t, baseURL: srv.URL, client: srv.Client(), remote: remote, store: store, verifier: v}
}

func (c *apiClient) token(user string) string {
	c.t.Helper()
	tok, err := c.verifier.GenerateToken(user, user+"@example.com", time.Hour)
	require.NoError(c.t, err)
	return tok
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	return resp
}

// signIn establishes a session for user and returns its token.
func (c *apiClient) signIn(user string) string {
	c.t.Helper()
	tok := c.token(user)
	resp := c.do(http.MethodPost, "/v1/session", tok, nil)
	st := decode[session.State](c.t, resp)
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	require.True(c.t, st.SignedIn)
	require.False(c.t, st.Loading)
	return tok
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/readyz", "", nil)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyProbePendingSessionCheck(t *testing.T) {
	store := entity.New(tracker.NewInMemory())
	v, err := auth.NewVerifier("test-secret")
	require.NoError(t, err)
	manager := session.NewManager(session.NewTokenProvider(v), store, nil)

	assert.Error(t, ReadyProbe{Sessions: manager}.Check(context.Background()))
}

func TestAchievementFlowUpdatesMetrics(t *testing.T) {
	api := newTestAPI(t)
	tok := api.signIn("u1")

	resp := api.do(http.MethodPost, "/v1/achievements", tok, map[string]any{
		"title":    "Best paper",
		"date":     "2024-03-01",
		"category": "Award",
		"impact":   "Cited widely",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[tracker.Achievement](t, resp)
	assert.Equal(t, "March 01, 2024", created.DisplayDate)
	assert.Equal(t, tracker.EvidencePDF, created.EvidenceKind)

	resp = api.do(http.MethodGet, "/v1/metrics", tok, nil)
	metrics := decode[struct {
		Years   []string                  `json:"years"`
		Metrics map[string]map[string]any `json:"metrics"`
	}](t, resp)
	assert.Equal(t, []string{"2024"}, metrics.Years)
	assert.Equal(t, float64(15), metrics.Metrics["2024"]["impact_score"])

	resp = api.do(http.MethodPatch, "/v1/achievements/"+created.ID, tok, map[string]any{"date": "2023-06-01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[tracker.Achievement](t, resp)
	assert.Equal(t, "June 01, 2023", updated.DisplayDate)
	_, ok := api.store.Metrics()["2023"]
	assert.True(t, ok, "metric moves with the date")

	resp = api.do(http.MethodDelete, "/v1/achievements/"+created.ID, tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.Empty(t, api.store.Achievements())

	resp = api.do(http.MethodDelete, "/v1/achievements/"+created.ID, tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateAchievementValidation(t *testing.T) {
	api := newTestAPI(t)
	tok := api.signIn("u1")

	resp := api.do(http.MethodPost, "/v1/achievements", tok, map[string]any{"title": "x", "date": "03/01/2024"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/achievements", tok, map[string]any{"title": " ", "date": "2024-03-01"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/achievements", tok, map[string]any{"title": "x", "date": "2024-03-01", "unknown": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRemoteFailureSurfacesAsBadGateway(t *testing.T) {
	api := newTestAPI(t)
	tok := api.signIn("u1")
	api.remote.FailOn(tracker.OpGoalInsert, assert.AnError)

	resp := api.do(http.MethodPost, "/v1/goals", tok, map[string]any{"title": "Publish"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.NotEmpty(t, body["request_id"])
	assert.Empty(t, api.store.Goals())
}

func TestEvidenceUploadIsServedFromStorage(t *testing.T) {
	api := newTestAPI(t)
	tok := api.signIn("u1")

	resp := api.do(http.MethodPost, "/v1/achievements", tok, map[string]any{
		"title":         "Keynote",
		"date":          "2024-05-10",
		"category":      "Presentation",
		"evidence_kind": "image",
		"file":          map[string]any{"name": "slides.png", "folder": "talks", "data": []byte("png-bytes")},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[tracker.Achievement](t, resp)
	assert.Equal(t, "slides.png", created.FileName)

	resp = api.do(http.MethodGet, "/v1/files", tok, nil)
	files := decode[struct {
		Items []fileResponse `json:"items"`
	}](t, resp)
	require.Len(t, files.Items, 1)
	assert.Equal(t, "u1/talks/slides.png", files.Items[0].Path)
	assert.Equal(t, "talks", files.Items[0].Folder)

	resp = api.do(http.MethodGet, "/storage/"+tracker.BucketEvidence+"/u1/talks/slides.png", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(raw))
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp = api.do(http.MethodDelete, "/v1/files/"+files.Items[0].ID, tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	_, ok := api.remote.BlobData(tracker.BucketEvidence, "u1/talks/slides.png")
	assert.False(t, ok)

	resp = api.do(http.MethodGet, "/storage/secrets/u1/x", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGoalLifecycle(t *testing.T) {
	api := newTestAPI(t)
	tok := api.signIn("u1")

	resp := api.do(http.MethodPost, "/v1/goals", tok, map[string]any{"title": "Publish", "target_date": "2025-01-01"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g := decode[tracker.Goal](t, resp)
	assert.Equal(t, tracker.GoalInProgress, g.Status)

	resp = api.do(http.MethodPost, "/v1/goals/"+g.ID+"/toggle", tok, nil)
	toggled := decode[tracker.Goal](t, resp)
	assert.Equal(t, tracker.GoalCompleted, toggled.Status)

	resp = api.do(http.MethodPatch, "/v1/goals/"+g.ID, tok, map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/v1/goals/"+g.ID, tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.Empty(t, api.store.Goals())
}

func TestProfileUpdateAndAvatar(t *testing.T) {
	api := newTestAPI(t)
	tok := api.signIn("u1")

	resp := api.do(http.MethodGet, "/v1/profile", tok, nil)
	p := decode[profileResponse](t, resp)
	assert.True(t, p.Loaded)
	assert.False(t, p.Complete)

	resp = api.do(http.MethodPatch, "/v1/profile", tok, map[string]any{"display_name": "Ada", "target_role": "Scientist"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p = decode[profileResponse](t, resp)
	assert.True(t, p.Complete)

	resp = api.do(http.MethodGet, "/v1/session", tok, nil)
	st := decode[session.State](t, resp)
	assert.False(t, st.ProfileIncomplete)

	resp = api.do(http.MethodPatch, "/v1/profile", tok, map[string]any{"avatar_path": "u2/avatar.png"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPut, "/v1/profile/avatar", tok, map[string]any{"name": "Me.PNG", "data": []byte("img")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.True(t, strings.HasSuffix(body["avatar_url"], "/avatars/u1/avatar.png"))
}

func TestInsights(t *testing.T) {
	api := newTestAPI(t)
	tok := api.signIn("u1")
	for _, a := range []map[string]any{
		{"title": "A", "date": "2024-02-01", "category": "Award", "tag": "Critical Role", "is_public": true},
		{"title": "B", "date": "2024-03-01", "category": "Publication"},
	} {
		resp := api.do(http.MethodPost, "/v1/achievements", tok, a)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := api.do(http.MethodGet, "/v1/insights/gaps?year=2024", tok, nil)
	gaps := decode[map[string]any](t, resp)
	assert.Equal(t, float64(50), gaps["progress"])

	resp = api.do(http.MethodGet, "/v1/insights/gaps?year=24", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/insights/report?year=2019", tok, nil)
	report := decode[map[string]any](t, resp)
	assert.Equal(t, "0%", report["metric"].(map[string]any)["completion_rate"])

	resp = api.do(http.MethodGet, "/v1/insights/streak", tok, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/portfolio/u1", "", nil)
	portfolio := decode[map[string]any](t, resp)
	assert.Len(t, portfolio["achievements"], 1)
	assert.Equal(t, float64(1), portfolio["awards"])
}

func TestAuthAndSessionOwnership(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/v1/achievements", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.NotEmpty(t, body["error"])

	resp = api.do(http.MethodGet, "/v1/achievements", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/session", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	api.signIn("u1")
	resp = api.do(http.MethodGet, "/v1/achievements", api.token("u2"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/session", api.token("u2"), nil)
	st := decode[session.State](t, resp)
	assert.False(t, st.SignedIn)
	assert.Empty(t, st.UserID)
}

func TestSignOutClearsSession(t *testing.T) {
	api := newTestAPI(t)
	tok := api.signIn("u1")
	resp := api.do(http.MethodPost, "/v1/goals", tok, map[string]any{"title": "g"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/v1/session", tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.Empty(t, api.store.Goals())

	resp = api.do(http.MethodGet, "/v1/goals", tok, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionEventsStream(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token("u1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/session/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := api.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The preamble is flushed once the subscription exists.
	buf := make([]byte, len(": stream started\n\n"))
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	api.signIn("u1")

	var got strings.Builder
	chunk := make([]byte, 512)
	for !strings.Contains(got.String(), `"user_id":"u1"`) {
		n, err := resp.Body.Read(chunk)
		require.NoError(t, err)
		got.Write(chunk[:n])
	}
	assert.Contains(t, got.String(), "event: session")
}
