package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/service"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
	"github.com/noah-isme/sma-schedule-engine/pkg/response"
)

type scheduleRunService interface {
	Create(ctx context.Context, req dto.CreateScheduleRunRequest) (*dto.ScheduleRunResponse, error)
	Start(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*dto.ScheduleRunResponse, error)
	Progress(ctx context.Context, id string) (*dto.ProgressView, error)
	Cancel(ctx context.Context, id string) error
	Apply(ctx context.Context, id string) (*dto.ApplyResponse, error)
	Rollback(ctx context.Context, id string) (*dto.RollbackResponse, error)
	Schedule(ctx context.Context, scope string) (*models.CommittedSchedule, error)
	PreviousSchedule(ctx context.Context, scope string) (*models.CommittedSchedule, error)
}

// ScheduleRunHandler exposes the generation run lifecycle.
type ScheduleRunHandler struct {
	service scheduleRunService
}

// NewScheduleRunHandler constructs the handler.
func NewScheduleRunHandler(svc *service.ScheduleRunService) *ScheduleRunHandler {
	return &ScheduleRunHandler{service: svc}
}

// Register mounts run and schedule routes on a router group.
func (h *ScheduleRunHandler) Register(group *gin.RouterGroup) {
	runs := group.Group("/schedule-runs")
	runs.POST("", h.Create)
	runs.GET("/:id", h.Get)
	runs.GET("/:id/progress", h.Progress)
	runs.POST("/:id/start", h.Start)
	runs.POST("/:id/cancel", h.Cancel)
	runs.POST("/:id/apply", h.Apply)
	runs.POST("/:id/rollback", h.Rollback)

	group.GET("/schedules/:scope", h.Schedule)
	group.GET("/schedules/:scope/previous", h.PreviousSchedule)
}

// Create godoc
// @Summary Create a schedule generation run
// @Description Validates the configuration and registers a PENDING run. Set start=true to launch it immediately.
// @Tags ScheduleRuns
// @Accept json
// @Produce json
// @Param start query bool false "Start the run after creating it"
// @Param payload body dto.CreateScheduleRunRequest true "Run configuration"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule-runs [post]
func (h *ScheduleRunHandler) Create(c *gin.Context) {
	var req dto.CreateScheduleRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidConfig.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	run, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if strings.EqualFold(c.Query("start"), "true") {
		if err := h.service.Start(c.Request.Context(), run.ID); err != nil {
			response.Error(c, err)
			return
		}
		if started, err := h.service.Get(c.Request.Context(), run.ID); err == nil {
			run = started
		}
	}
	response.Created(c, run)
}

// Start godoc
// @Summary Start a pending run
// @Tags ScheduleRuns
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedule-runs/{id}/start [post]
func (h *ScheduleRunHandler) Start(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Start(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"runId": id, "status": string(models.RunStatusRunning)})
}

// Get godoc
// @Summary Get run detail
// @Tags ScheduleRuns
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedule-runs/{id} [get]
func (h *ScheduleRunHandler) Get(c *gin.Context) {
	run, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// Progress godoc
// @Summary Get run progress
// @Tags ScheduleRuns
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedule-runs/{id}/progress [get]
func (h *ScheduleRunHandler) Progress(c *gin.Context) {
	view, err := h.service.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Cancel godoc
// @Summary Cancel a pending or running run
// @Tags ScheduleRuns
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule-runs/{id}/cancel [post]
func (h *ScheduleRunHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Cancel(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"runId": id, "cancelRequested": true})
}

// Apply godoc
// @Summary Commit a succeeded run's schedule
// @Tags ScheduleRuns
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule-runs/{id}/apply [post]
func (h *ScheduleRunHandler) Apply(c *gin.Context) {
	result, err := h.service.Apply(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Rollback godoc
// @Summary Restore the schedule that an applied run replaced
// @Tags ScheduleRuns
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule-runs/{id}/rollback [post]
func (h *ScheduleRunHandler) Rollback(c *gin.Context) {
	result, err := h.service.Rollback(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Schedule godoc
// @Summary Read the committed schedule of a scope
// @Tags Schedules
// @Produce json
// @Param scope path string true "Schedule scope"
// @Success 200 {object} response.Envelope
// @Router /schedules/{scope} [get]
func (h *ScheduleRunHandler) Schedule(c *gin.Context) {
	snap, err := h.service.Schedule(c.Request.Context(), c.Param("scope"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snap, map[string]interface{}{"version": snap.Version})
}

// PreviousSchedule godoc
// @Summary Read the rollback target of a scope
// @Tags Schedules
// @Produce json
// @Param scope path string true "Schedule scope"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{scope}/previous [get]
func (h *ScheduleRunHandler) PreviousSchedule(c *gin.Context) {
	snap, err := h.service.PreviousSchedule(c.Request.Context(), c.Param("scope"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snap)
}
