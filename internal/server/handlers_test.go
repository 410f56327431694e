package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge-api/internal/generation"
	"github.com/reelforge/reelforge-api/internal/ledger"
	"github.com/reelforge/reelforge-api/internal/media"
	"github.com/reelforge/reelforge-api/internal/project"
	"github.com/reelforge/reelforge-api/internal/provider"
)

// stubProvider keeps background lifecycles pending so handler tests observe
// stable statuses.
type stubProvider struct{}

func (stubProvider) Submit(context.Context, string, string) (string, error) {
	return "prov-job-1", nil
}

func (stubProvider) Poll(context.Context, string) (provider.PollResult, error) {
	return provider.PollResult{Status: provider.StatusInProgress}, nil
}

type stubProcessor struct{}

func (stubProcessor) Process(context.Context, media.Input) (media.Result, error) {
	return media.Result{VideoURL: "https://cdn.example.com/out.mp4"}, nil
}

type handlerEnv struct {
	router    http.Handler
	repo      *generation.MemoryRepository
	tokens    *ledger.MemoryLedger
	projectID string
}

const testUser = "user-1"

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	repo := generation.NewMemoryRepository()
	tokens := ledger.NewMemoryLedger()
	projects := project.NewMemoryStore()
	proj := projects.Add(project.Project{
		UserID:   testUser,
		ImageURL: "https://images.example.com/source.png",
	})

	o := generation.NewOrchestrator(repo, projects, stubProvider{}, stubProcessor{}, tokens, nil,
		generation.WithConfig(generation.Config{
			Cost:            10,
			PollInterval:    time.Minute,
			MaxPollAttempts: 5,
		}))
	t.Cleanup(o.Close)

	h := NewHandlers(o, nil)
	return &handlerEnv{
		router:    NewRouter(h, nil, DefaultConfig()),
		repo:      repo,
		tokens:    tokens,
		projectID: proj.ID,
	}
}

func (e *handlerEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestStartGeneration_Accepted(t *testing.T) {
	env := newHandlerEnv(t)
	env.tokens.Credit(context.Background(), testUser, 100)

	rec := env.do(t, http.MethodPost, "/generations", testUser, StartGenerationRequest{
		ProjectID: env.projectID,
		Prompt:    "a cat surfing",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp StartGenerationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, string(generation.StatusQueued), resp.Status)

	gen, err := env.repo.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, testUser, gen.UserID)
}

func TestStartGeneration_MissingUser(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/generations", "", StartGenerationRequest{
		ProjectID: env.projectID,
		Prompt:    "p",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MISSING_USER", resp.Code)
}

func TestStartGeneration_InvalidJSON(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewBufferString("{not json"))
	req.Header.Set(userIDHeader, testUser)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestStartGeneration_ValidationError(t *testing.T) {
	env := newHandlerEnv(t)
	env.tokens.Credit(context.Background(), testUser, 100)

	rec := env.do(t, http.MethodPost, "/generations", testUser, StartGenerationRequest{
		ProjectID: env.projectID,
		Prompt:    "",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
}

func TestStartGeneration_InsufficientTokens(t *testing.T) {
	env := newHandlerEnv(t)
	// No credit at all.

	rec := env.do(t, http.MethodPost, "/generations", testUser, StartGenerationRequest{
		ProjectID: env.projectID,
		Prompt:    "p",
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(generation.KindInsufficientTokens), resp.Code)
}

func TestStartGeneration_ProjectNotFound(t *testing.T) {
	env := newHandlerEnv(t)
	env.tokens.Credit(context.Background(), testUser, 100)

	rec := env.do(t, http.MethodPost, "/generations", testUser, StartGenerationRequest{
		ProjectID: "no-such-project",
		Prompt:    "p",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetGeneration(t *testing.T) {
	env := newHandlerEnv(t)
	env.tokens.Credit(context.Background(), testUser, 100)

	started := env.do(t, http.MethodPost, "/generations", testUser, StartGenerationRequest{
		ProjectID: env.projectID,
		Prompt:    "a cat surfing",
	})
	require.Equal(t, http.StatusAccepted, started.Code)

	var startResp StartGenerationResponse
	require.NoError(t, json.Unmarshal(started.Body.Bytes(), &startResp))

	rec := env.do(t, http.MethodGet, "/generations/"+startResp.ID, testUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GenerationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, startResp.ID, resp.ID)
	assert.NotEmpty(t, resp.Status)
	assert.NotEmpty(t, resp.CreatedAt)
}

func TestGetGeneration_NotFound(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodGet, "/generations/missing", testUser, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetGeneration_Forbidden(t *testing.T) {
	env := newHandlerEnv(t)
	env.tokens.Credit(context.Background(), testUser, 100)

	started := env.do(t, http.MethodPost, "/generations", testUser, StartGenerationRequest{
		ProjectID: env.projectID,
		Prompt:    "p",
	})
	require.Equal(t, http.StatusAccepted, started.Code)

	var startResp StartGenerationResponse
	require.NoError(t, json.Unmarshal(started.Body.Bytes(), &startResp))

	rec := env.do(t, http.MethodGet, "/generations/"+startResp.ID, "intruder", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetGeneration_MissingUser(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodGet, "/generations/some-id", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/generations", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
