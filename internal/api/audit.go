package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/pipeline"
)

// AuditHandler serves the classification pipeline.
type AuditHandler struct {
	pipeline *pipeline.Pipeline
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(p *pipeline.Pipeline) *AuditHandler {
	return &AuditHandler{pipeline: p}
}

// bindFilter reads an optional RecordFilter body; an empty body is the default filter.
func bindFilter(c *gin.Context) (domain.RecordFilter, bool) {
	var filter domain.RecordFilter
	if c.Request.ContentLength == 0 {
		return filter, true
	}
	if err := c.ShouldBindJSON(&filter); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return filter, false
	}
	if filter.RiskLevel != "" && !filter.RiskLevel.Valid() {
		verr := &domain.ValidationError{}
		verr.Add("risk_level", "unknown risk level %q", filter.RiskLevel)
		respondErr(c, verr)
		return filter, false
	}
	return filter, true
}

func (h *AuditHandler) Preview(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	result, err := h.pipeline.Preview(c.Request.Context(), filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type executeRequest struct {
	Items        []*domain.AuditItem `json:"audit_items"   binding:"required"`
	NewBlacklist []string            `json:"new_blacklist"`
}

// Execute applies preview items directly to the records.
func (h *AuditHandler) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	result, err := h.pipeline.Execute(c.Request.Context(), req.Items, req.NewBlacklist)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type stageRequest struct {
	ModuleType string              `json:"module_type"`
	Items      []*domain.AuditItem `json:"audit_items" binding:"required"`
}

// Stage saves preview items as pending judgments for review.
func (h *AuditHandler) Stage(c *gin.Context) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	saved, err := h.pipeline.Stage(c.Request.Context(), req.ModuleType, req.Items)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusMultiStatus, gin.H{"staged": saved, "total": len(req.Items), "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"staged": saved, "total": len(req.Items)})
}

// taskView adds the progress percentage to a judge task.
type taskView struct {
	*domain.AIJudgeTask
	Progress float64 `json:"progress"`
}

func viewOf(t *domain.AIJudgeTask) taskView {
	return taskView{AIJudgeTask: t, Progress: t.Progress()}
}

// Submit starts an asynchronous judgment run.
func (h *AuditHandler) Submit(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	task, err := h.pipeline.Submit(c.Request.Context(), filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, viewOf(task))
}

func (h *AuditHandler) Progress(c *gin.Context) {
	task, err := h.pipeline.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(task))
}

func (h *AuditHandler) Cancel(c *gin.Context) {
	task, err := h.pipeline.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(task))
}

func (h *AuditHandler) ListTasks(c *gin.Context) {
	page, err := h.pipeline.List(c.Request.Context(), pageRequest(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	views := make([]taskView, 0, len(page.Items))
	for _, t := range page.Items {
		views = append(views, viewOf(t))
	}
	c.JSON(http.StatusOK, domain.Page[taskView]{Items: views, Total: page.Total, Page: page.Page, Size: page.Size})
}
