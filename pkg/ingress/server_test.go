package ingress

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/artifact"
	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/credit"
	"github.com/conductor-run/conductor/pkg/events"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/store/memstore"
)

const testToken = "test-token"

func setUpServer(t *testing.T) (*gin.Engine, *memstore.Store, *artifact.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memstore.New()
	blobs, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	artifacts := artifact.New(blobs, st.Artifacts)

	broadcast := events.NewBroadcaster(&config.EventConfig{BufferSize: 8, CatchupLimit: 50, CleanupDelay: 0})

	auth := NewStaticAuthenticator(map[string]Principal{
		testToken: {TenantID: "tenant-1", UserID: "user-1"},
	})

	creditCfg := config.DefaultCreditConfig()

	hooks := credit.New(st.Credits, credit.NewMemoryCounter(), creditCfg.DefaultBudget)

	srv := NewServer(st.Runs, st.Steps, artifacts, nil, hooks, broadcast, auth, creditCfg, config.DefaultQueueConfig())

	engine := gin.New()
	srv.Routes(engine)
	return engine, st, artifacts
}

func authedRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateRunPersistsPendingRun(t *testing.T) {
	engine, st, _ := setUpServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/runs", CreateRunRequest{Prompt: "summarize the repo"}))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "created", resp.Status)
	assert.NotEmpty(t, resp.RunID)

	run, err := st.Runs.Get(t.Context(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, run.Status)
	assert.Equal(t, "tenant-1", run.TenantID)
}

func TestCreateRunRejectsMissingAuth(t *testing.T) {
	engine, _, _ := setUpServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateRunRejectsExcessiveCredits(t *testing.T) {
	engine, _, _ := setUpServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/runs", CreateRunRequest{
		Prompt: "x",
		Config: &RunConfigOverrides{MaxCredits: 1_000_000},
	}))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestCreateRunIsIdempotentUnderExternalID(t *testing.T) {
	engine, _, _ := setUpServer(t)

	body := CreateRunRequest{Prompt: "x", ExternalID: "caller-token-1"}

	rec1 := httptest.NewRecorder()
	engine.ServeHTTP(rec1, authedRequest(http.MethodPost, "/v1/runs", body))
	var resp1 CreateRunResponse
	require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &resp1))

	rec2 := httptest.NewRecorder()
	engine.ServeHTTP(rec2, authedRequest(http.MethodPost, "/v1/runs", body))
	var resp2 CreateRunResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp2))

	assert.Equal(t, resp1.RunID, resp2.RunID)
}

func TestStartTransitionsPendingToQueued(t *testing.T) {
	engine, st, _ := setUpServer(t)

	createRec := httptest.NewRecorder()
	engine.ServeHTTP(createRec, authedRequest(http.MethodPost, "/v1/runs", CreateRunRequest{Prompt: "x"}))
	var created CreateRunResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/runs/"+created.RunID+"/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	run, err := st.Runs.Get(t.Context(), created.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.Greater(t, run.CreditsReserved, int64(0))
}

func TestStartRejectsAlreadyExecutingRun(t *testing.T) {
	engine, st, _ := setUpServer(t)

	run := &model.Run{ID: "run-x", TenantID: "tenant-1", Status: model.RunStatusExecuting, Config: model.DefaultRunConfig()}
	require.NoError(t, st.Runs.Create(t.Context(), run))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/runs/run-x/start", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopCancelsAQueuedRun(t *testing.T) {
	engine, st, _ := setUpServer(t)

	run := &model.Run{ID: "run-y", TenantID: "tenant-1", Status: model.RunStatusQueued, Config: model.DefaultRunConfig()}
	require.NoError(t, st.Runs.Create(t.Context(), run))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/runs/run-y/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := st.Runs.Get(t.Context(), "run-y")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, updated.Status)
}

func TestRetryRequiresFailedStatus(t *testing.T) {
	engine, st, _ := setUpServer(t)

	run := &model.Run{ID: "run-z", TenantID: "tenant-1", Status: model.RunStatusExecuting, Config: model.DefaultRunConfig()}
	require.NoError(t, st.Runs.Create(t.Context(), run))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/runs/run-z/retry", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryCreatesNewRunFromFailedOne(t *testing.T) {
	engine, st, _ := setUpServer(t)

	run := &model.Run{
		ID: "run-failed", TenantID: "tenant-1", Status: model.RunStatusFailed,
		Prompt: "do the thing", Config: model.DefaultRunConfig(),
	}
	require.NoError(t, st.Runs.Create(t.Context(), run))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/runs/run-failed/retry", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, "run-failed", resp.RunID)

	retried, err := st.Runs.Get(t.Context(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "do the thing", retried.Prompt)
	assert.Equal(t, model.RunStatusPending, retried.Status)
}

func TestResumeRequeuesAWaitingUserRunWithInput(t *testing.T) {
	engine, st, _ := setUpServer(t)

	run := &model.Run{ID: "run-waiting", TenantID: "tenant-1", Status: model.RunStatusWaitingUser, Config: model.DefaultRunConfig()}
	require.NoError(t, st.Runs.Create(t.Context(), run))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/runs/run-waiting/resume", ResumeRunRequest{UserInput: "use option B"}))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := st.Runs.Get(t.Context(), "run-waiting")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, updated.Status)
	assert.Equal(t, "use option B", updated.PendingUserInput)
}

func TestStatusReturnsPlanSummary(t *testing.T) {
	engine, st, _ := setUpServer(t)

	run := &model.Run{
		ID: "run-status", TenantID: "tenant-1", Status: model.RunStatusExecuting, Config: model.DefaultRunConfig(),
		Plan: &model.Plan{Goal: "ship it", Phases: []*model.Phase{
			{ID: 1, Title: "research", Status: model.PhaseStatusCompleted},
			{ID: 2, Title: "write", Status: model.PhaseStatusExecuting},
		}},
	}
	require.NoError(t, st.Runs.Create(t.Context(), run))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/runs/run-status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Plan)
	assert.Equal(t, "ship it", resp.Plan.Goal)
	assert.Len(t, resp.Plan.Phases, 2)
}

func TestStatusReturns404ForUnknownRun(t *testing.T) {
	engine, _, _ := setUpServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/runs/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzReportsHealthy(t *testing.T) {
	engine, _, _ := setUpServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestArtifactDownloadRoundTrips(t *testing.T) {
	engine, _, mgr := setUpServer(t)

	uri, err := mgr.Put(t.Context(), "run-1", "notes.txt", []byte("hello artifact"))
	require.NoError(t, err)
	id := uri[len("artifact://"):]

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/artifacts/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello artifact", rec.Body.String())
}
