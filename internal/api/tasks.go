package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/monitor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/scheduler"
)

// TaskHandler serves scheduled task management.
type TaskHandler struct {
	scheduler *scheduler.Scheduler
	crawlers  *registry.CrawlerRegistry
	monitor   *monitor.Monitor
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(sched *scheduler.Scheduler, crawlers *registry.CrawlerRegistry, mon *monitor.Monitor) *TaskHandler {
	return &TaskHandler{scheduler: sched, crawlers: crawlers, monitor: mon}
}

func (h *TaskHandler) List(c *gin.Context) {
	views, err := h.scheduler.List(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	if views == nil {
		views = []domain.TaskView{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": views, "count": len(views)})
}

func (h *TaskHandler) Get(c *gin.Context) {
	view, err := h.scheduler.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type createTaskRequest struct {
	ID             string        `json:"id"`
	CrawlerName    string        `json:"crawler_name"    binding:"required"`
	Parameters     domain.Params `json:"parameters"`
	CronExpression string        `json:"cron_expression" binding:"required"`
	Paused         bool          `json:"paused"`
}

// Create schedules an inline task. Preset tasks are managed through presets.
func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.crawlers.Validate(req.CrawlerName, req.Parameters); err != nil {
		respondErr(c, err)
		return
	}

	task := &domain.ScheduledTask{
		ID:             req.ID,
		CrawlerName:    req.CrawlerName,
		Parameters:     req.Parameters,
		CronExpression: req.CronExpression,
		State:          domain.TaskActive,
	}
	if req.Paused {
		task.State = domain.TaskPaused
	}
	if err := h.scheduler.Schedule(c.Request.Context(), task); err != nil {
		respondErr(c, err)
		return
	}
	view, err := h.scheduler.Get(c.Request.Context(), task.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

type rescheduleRequest struct {
	CronExpression string `json:"cron_expression" binding:"required"`
}

func (h *TaskHandler) Reschedule(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.thenGet(c, h.scheduler.Reschedule(c.Request.Context(), c.Param("id"), req.CronExpression))
}

func (h *TaskHandler) Pause(c *gin.Context) {
	h.thenGet(c, h.scheduler.Pause(c.Request.Context(), c.Param("id")))
}

func (h *TaskHandler) Resume(c *gin.Context) {
	h.thenGet(c, h.scheduler.Resume(c.Request.Context(), c.Param("id")))
}

// thenGet responds with the task view after a successful command.
func (h *TaskHandler) thenGet(c *gin.Context, err error) {
	if err != nil {
		respondErr(c, err)
		return
	}
	h.Get(c)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.scheduler.Remove(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Trigger runs the task now and returns the RUNNING execution.
func (h *TaskHandler) Trigger(c *gin.Context) {
	rec, err := h.scheduler.Trigger(c.Request.Context(), c.Param("id"), operator(c, c.Query("triggered_by")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, rec)
}

func (h *TaskHandler) Statistics(c *gin.Context) {
	stats, err := h.monitor.TaskStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
