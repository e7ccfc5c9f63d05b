package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-gateway/internal/app/middleware"
	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/eino/nodes"
	"rag-gateway/internal/infrastructure/stores/memory"
	"rag-gateway/pkg/logger"
	"rag-gateway/pkg/status"
)

type stubAsker struct {
	result *models.PipelineResult
	err    error
	run    models.RunStatus
	runErr error

	gotQuery     *string
	gotRequestID string
}

func (s *stubAsker) Ask(_ context.Context, raw *string, requestID string) (*models.PipelineResult, error) {
	s.gotQuery = raw
	s.gotRequestID = requestID
	return s.result, s.err
}

func (s *stubAsker) GetRun(_ context.Context, runID string) (models.RunStatus, error) {
	if s.runErr != nil {
		return models.RunStatus{}, s.runErr
	}
	run := s.run
	run.RunID = runID
	return run, nil
}

func newTestEngine(asker Asker, cache CacheAdmin) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.LoggingMiddleware(&middleware.LoggingConfig{Logger: logger.Nop()}))

	q := NewQueryHandler(asker, logger.Nop())
	engine.POST("/v1/query", q.Query)
	engine.GET("/v1/runs/:run_id", q.GetRun)

	ch := NewCacheHandler(cache, logger.Nop())
	engine.GET("/v1/cache/:key", ch.GetCacheEntry)
	engine.DELETE("/v1/cache/:key", ch.DeleteCacheEntry)

	engine.GET("/health", NewHealthHandler("test").HealthCheck)
	return engine
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, "req-test")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestQuery_Success(t *testing.T) {
	score := 0.91
	asker := &stubAsker{result: &models.PipelineResult{
		Query:           "What is Amazon Bedrock?",
		Answer:          "Amazon Bedrock is a managed service for foundation models.",
		Sources:         []models.Source{{Title: "guide.pdf", URI: "guide.pdf", Score: &score}},
		ExecutionTimeMs: 120,
	}}
	engine := newTestEngine(asker, nil)

	w := do(engine, http.MethodPost, "/v1/query", `{"query": "What is Amazon Bedrock?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "What is Amazon Bedrock?", body["query"])
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, float64(120), body["execution_time_ms"])
	assert.Len(t, body["sources"], 1)

	require.NotNil(t, asker.gotQuery)
	assert.Equal(t, "What is Amazon Bedrock?", *asker.gotQuery)
	assert.Equal(t, "req-test", asker.gotRequestID)
}

func TestQuery_InvalidJSON(t *testing.T) {
	asker := &stubAsker{}
	engine := newTestEngine(asker, nil)

	w := do(engine, http.MethodPost, "/v1/query", `{"query": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, status.CodeInvalidJSON, resp.Error)
	assert.Equal(t, "Invalid JSON in request body", resp.Message)
	assert.Equal(t, "req-test", resp.RequestID)
	assert.Nil(t, asker.gotQuery)
	assert.Empty(t, asker.gotRequestID)
}

func TestQuery_WrongTypeAndEmptyBodyReachValidation(t *testing.T) {
	for _, body := range []string{`{"query": 42}`, ``, `{}`} {
		asker := &stubAsker{err: models.NewValidationError("Query must be a non-empty string")}
		engine := newTestEngine(asker, nil)

		w := do(engine, http.MethodPost, "/v1/query", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Nil(t, asker.gotQuery, body)
		assert.Equal(t, "req-test", asker.gotRequestID, body)

		resp := decodeError(t, w)
		assert.Equal(t, status.CodeValidation, resp.Error)
		assert.Equal(t, "Query must be a non-empty string", resp.Message)
	}
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    status.ErrorCode
		http    int
		message string
	}{
		{"blocked", models.NewBlockedError(models.StateCheckInput, "PII detected"), status.CodeGuardrailsBlocked, http.StatusBadRequest, "Content blocked by safety guidelines"},
		{"stage failure", models.NewStageError(models.StateRetrieve, errors.New("dial tcp 10.0.0.1:6334")), status.CodeWorkflowFailed, http.StatusInternalServerError, "Query processing failed"},
		{"start failure", models.NewPipelineError(models.KindOrchestrationStart, "", "failed to start", nil), status.CodeWorkflowStartFailed, http.StatusInternalServerError, "Failed to start query processing"},
		{"timeout", models.NewPipelineError(models.KindTimeout, "", "no terminal state", nil), status.CodeWorkflowTimeout, http.StatusGatewayTimeout, "Query processing timed out"},
		{"unclassified", errors.New("boom"), status.CodeInternal, http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(&stubAsker{err: tt.err}, nil)

			w := do(engine, http.MethodPost, "/v1/query", `{"query": "q"}`)
			assert.Equal(t, tt.http, w.Code)

			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, tt.message, resp.Message)
			assert.NotContains(t, w.Body.String(), "10.0.0.1")
		})
	}
}

func TestGetRun(t *testing.T) {
	engine := newTestEngine(&stubAsker{run: models.RunStatus{State: models.StateRunning}}, nil)

	w := do(engine, http.MethodGet, "/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var run models.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, models.StateRunning, run.State)

	engine = newTestEngine(&stubAsker{runErr: models.NewPipelineError(models.KindNotFound, "", "run missing", nil)}, nil)
	w = do(engine, http.MethodGet, "/v1/runs/run-2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, status.CodeNotFound, decodeError(t, w).Error)
}

func TestCacheEntryRoutes(t *testing.T) {
	repo := memory.NewCacheRepository()
	cache := nodes.NewCacheStore(repo, time.Hour, logger.Nop())
	require.True(t, cache.Put(context.Background(), "What is Amazon Bedrock?", &models.PipelineResult{
		Answer:  "Amazon Bedrock is a managed service.",
		Sources: []models.Source{{Title: "guide.pdf"}},
	}, 0))

	engine := newTestEngine(&stubAsker{}, cache)
	key := models.QueryKey("What is Amazon Bedrock?")

	w := do(engine, http.MethodGet, "/v1/cache/"+key, "")
	require.Equal(t, http.StatusOK, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, key, entry["query_hash"])
	assert.Equal(t, "Amazon Bedrock is a managed service.", entry["answer"])

	w = do(engine, http.MethodDelete, "/v1/cache/"+key, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, repo.Len())

	w = do(engine, http.MethodGet, "/v1/cache/"+key, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(engine, http.MethodGet, "/v1/cache/not-a-hash", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, status.CodeValidation, decodeError(t, w).Error)
}

func TestHealthCheck(t *testing.T) {
	engine := newTestEngine(&stubAsker{}, nil)

	w := do(engine, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(models.NewValidationError("Query cannot be empty or whitespace only"), "req-1")
	assert.Equal(t, status.CodeValidation, resp.Error)
	assert.Equal(t, "Query cannot be empty or whitespace only", resp.Message)
	assert.Equal(t, "req-1", resp.RequestID)

	resp = NewErrorResponse(models.NewStageError(models.StateGenerate, errors.New("throttled")), "req-2")
	assert.Equal(t, status.CodeWorkflowFailed, resp.Error)
	assert.Equal(t, "Query processing failed", resp.Message)
}
