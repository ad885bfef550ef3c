package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/executor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/monitor"
)

// ExecutionHandler serves execution history and the monitor views.
type ExecutionHandler struct {
	monitor  *monitor.Monitor
	executor *executor.Executor
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(mon *monitor.Monitor, exec *executor.Executor) *ExecutionHandler {
	return &ExecutionHandler{monitor: mon, executor: exec}
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondBadRequest(c, key+" must be an RFC3339 timestamp")
		return nil, false
	}
	return &t, true
}

// History lists executions newest first. Filters: crawler_name, task_id,
// status, from and to (RFC3339, to is exclusive).
func (h *ExecutionHandler) History(c *gin.Context) {
	filter := domain.ExecutionFilter{
		CrawlerName: c.Query("crawler_name"),
		TaskID:      c.Query("task_id"),
		Status:      domain.ExecutionStatus(c.Query("status")),
	}
	var ok bool
	if filter.From, ok = parseTimeQuery(c, "from"); !ok {
		return
	}
	if filter.To, ok = parseTimeQuery(c, "to"); !ok {
		return
	}

	page, err := h.monitor.History(c.Request.Context(), filter, pageRequest(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ExecutionHandler) Get(c *gin.Context) {
	rec, err := h.monitor.Execution(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ExecutionHandler) Running(c *gin.Context) {
	running, err := h.monitor.RunningTasks(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": running, "count": len(running)})
}

// Retry re-runs a FAILED execution with its parameter snapshot.
func (h *ExecutionHandler) Retry(c *gin.Context) {
	rec, err := h.executor.RetryFailed(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, rec)
}

func (h *ExecutionHandler) Overview(c *gin.Context) {
	overview, err := h.monitor.SystemOverview(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}
