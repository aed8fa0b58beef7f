package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type scheduleRunServiceMock struct {
	created   dto.CreateScheduleRunRequest
	started   []string
	startErr  error
	applyErr  error
	cancelErr error
	runs      map[string]*dto.ScheduleRunResponse
}

func (m *scheduleRunServiceMock) Create(_ context.Context, req dto.CreateScheduleRunRequest) (*dto.ScheduleRunResponse, error) {
	m.created = req
	run := &dto.ScheduleRunResponse{ID: "run-1", Scope: req.Scope, Status: "PENDING"}
	m.runs = map[string]*dto.ScheduleRunResponse{run.ID: run}
	return run, nil
}

func (m *scheduleRunServiceMock) Start(_ context.Context, id string) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, id)
	if run, ok := m.runs[id]; ok {
		run.Status = "RUNNING"
	}
	return nil
}

func (m *scheduleRunServiceMock) Get(_ context.Context, id string) (*dto.ScheduleRunResponse, error) {
	if run, ok := m.runs[id]; ok {
		cp := *run
		return &cp, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule run "+id+" not found")
}

func (m *scheduleRunServiceMock) Progress(_ context.Context, id string) (*dto.ProgressView, error) {
	return &dto.ProgressView{RunID: id, Status: "RUNNING", Phase: "construct", Percent: 42, Placed: 5, Total: 12}, nil
}

func (m *scheduleRunServiceMock) Cancel(_ context.Context, _ string) error {
	return m.cancelErr
}

func (m *scheduleRunServiceMock) Apply(_ context.Context, id string) (*dto.ApplyResponse, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	return &dto.ApplyResponse{RunID: id, Scope: "term-1", Version: 3, Status: "APPLIED"}, nil
}

func (m *scheduleRunServiceMock) Rollback(_ context.Context, id string) (*dto.RollbackResponse, error) {
	return &dto.RollbackResponse{RunID: id, Scope: "term-1", RestoredVersion: 2, Status: "ROLLED_BACK"}, nil
}

func (m *scheduleRunServiceMock) Schedule(_ context.Context, scope string) (*models.CommittedSchedule, error) {
	return &models.CommittedSchedule{Scope: scope, Version: 4, Assignments: models.AssignmentSet{}}, nil
}

func (m *scheduleRunServiceMock) PreviousSchedule(_ context.Context, scope string) (*models.CommittedSchedule, error) {
	return nil, appErrors.Clone(appErrors.ErrNoRollbackTarget, "scope "+scope+" has no previous schedule")
}

func newScheduleRunRouter(svc *scheduleRunServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := &ScheduleRunHandler{service: svc}
	handler.Register(router.Group("/api/v1"))
	return router
}

func serve(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

const runPayload = `{
  "scope": "term-1",
  "strategy": "HYBRID",
  "grid": {"days": 5, "slotsPerDay": 4},
  "rooms": [{"id": "hall", "capacity": 120}],
  "tasks": [{"id": "math-11", "cohorts": ["11A"], "duration": 2, "rooms": ["hall"]}],
  "budget": {"timeLimitMs": 5000, "seed": 7}
}`

func TestScheduleRunHandlerCreate(t *testing.T) {
	svc := &scheduleRunServiceMock{}
	router := newScheduleRunRouter(svc)

	w := serve(router, http.MethodPost, "/api/v1/schedule-runs", []byte(runPayload))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "term-1", svc.created.Scope)
	assert.Equal(t, 5, svc.created.Grid.Days)
	require.Len(t, svc.created.Tasks, 1)
	assert.Equal(t, 2, svc.created.Tasks[0].Duration)
	assert.Equal(t, int64(7), svc.created.Budget.Seed)
	assert.Empty(t, svc.started)

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "PENDING", data["status"])
}

func TestScheduleRunHandlerCreateAndStart(t *testing.T) {
	svc := &scheduleRunServiceMock{}
	router := newScheduleRunRouter(svc)

	w := serve(router, http.MethodPost, "/api/v1/schedule-runs?start=true", []byte(runPayload))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"run-1"}, svc.started)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "RUNNING", data["status"])
}

func TestScheduleRunHandlerCreateRejectsMalformedJSON(t *testing.T) {
	router := newScheduleRunRouter(&scheduleRunServiceMock{})

	w := serve(router, http.MethodPost, "/api/v1/schedule-runs", []byte(`{"scope":`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]any)
	assert.Equal(t, "INVALID_CONFIG", errBody["code"])
}

func TestScheduleRunHandlerStart(t *testing.T) {
	svc := &scheduleRunServiceMock{}
	router := newScheduleRunRouter(svc)

	w := serve(router, http.MethodPost, "/api/v1/schedule-runs/run-9/start", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"run-9"}, svc.started)

	svc.startErr = appErrors.ErrBusy
	w = serve(router, http.MethodPost, "/api/v1/schedule-runs/run-9/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	svc.startErr = appErrors.Clone(appErrors.ErrInvalidState, "run run-9 is SUCCEEDED")
	w = serve(router, http.MethodPost, "/api/v1/schedule-runs/run-9/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestScheduleRunHandlerGetAndProgress(t *testing.T) {
	router := newScheduleRunRouter(&scheduleRunServiceMock{})

	w := serve(router, http.MethodGet, "/api/v1/schedule-runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodGet, "/api/v1/schedule-runs/run-3/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "run-3", data["runId"])
	assert.Equal(t, 42.0, data["percent"])
	assert.Equal(t, "construct", data["phase"])
}

func TestScheduleRunHandlerApplyConflict(t *testing.T) {
	svc := &scheduleRunServiceMock{}
	router := newScheduleRunRouter(svc)

	w := serve(router, http.MethodPost, "/api/v1/schedule-runs/run-1/apply", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, 3.0, data["version"])

	svc.applyErr = appErrors.Clone(appErrors.ErrConflict, "scope term-1 moved")
	w = serve(router, http.MethodPost, "/api/v1/schedule-runs/run-1/apply", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]any)
	assert.Equal(t, "CONFLICT", errBody["code"])
}

func TestScheduleRunHandlerCancelAndRollback(t *testing.T) {
	svc := &scheduleRunServiceMock{}
	router := newScheduleRunRouter(svc)

	w := serve(router, http.MethodPost, "/api/v1/schedule-runs/run-1/cancel", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	svc.cancelErr = appErrors.Clone(appErrors.ErrInvalidState, "run run-1 is APPLIED")
	w = serve(router, http.MethodPost, "/api/v1/schedule-runs/run-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(router, http.MethodPost, "/api/v1/schedule-runs/run-1/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, 2.0, data["restoredVersion"])
	assert.Equal(t, "ROLLED_BACK", data["status"])
}

func TestScheduleRunHandlerSchedules(t *testing.T) {
	router := newScheduleRunRouter(&scheduleRunServiceMock{})

	w := serve(router, http.MethodGet, "/api/v1/schedules/term-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, 4.0, body["meta"].(map[string]any)["version"])

	w = serve(router, http.MethodGet, "/api/v1/schedules/term-1/previous", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]any)
	assert.Equal(t, "NO_ROLLBACK_TARGET", errBody["code"])
}
