package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/judgment"
)

// JudgmentHandler serves pending judgment review.
type JudgmentHandler struct {
	judgments *judgment.Service
}

// NewJudgmentHandler creates a JudgmentHandler.
func NewJudgmentHandler(svc *judgment.Service) *JudgmentHandler {
	return &JudgmentHandler{judgments: svc}
}

func judgmentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondBadRequest(c, "judgment id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *JudgmentHandler) List(c *gin.Context) {
	page, err := h.judgments.List(c.Request.Context(), c.Query("module_type"), pageRequest(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *JudgmentHandler) Get(c *gin.Context) {
	id, ok := judgmentID(c)
	if !ok {
		return
	}
	j, err := h.judgments.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

// Counts returns the pending total and its breakdown by entity type.
func (h *JudgmentHandler) Counts(c *gin.Context) {
	module := c.Query("module_type")
	total, err := h.judgments.PendingCount(c.Request.Context(), module)
	if err != nil {
		respondErr(c, err)
		return
	}
	byType, err := h.judgments.CountByEntityType(c.Request.Context(), module)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"module_type": module, "pending": total, "by_entity_type": byType})
}

func (h *JudgmentHandler) Statistics(c *gin.Context) {
	stats, err := h.judgments.Statistics(c.Request.Context(), c.Query("module_type"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type reviewRequest struct {
	Operator string `json:"operator"`
}

func (h *JudgmentHandler) Confirm(c *gin.Context) {
	h.review(c, h.judgments.Confirm, "confirmed")
}

func (h *JudgmentHandler) Reject(c *gin.Context) {
	h.review(c, h.judgments.Reject, "rejected")
}

func (h *JudgmentHandler) review(
	c *gin.Context, apply func(ctx context.Context, id int64, operator string) error, outcome string,
) {
	id, ok := judgmentID(c)
	if !ok {
		return
	}
	var req reviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	if err := apply(c.Request.Context(), id, operator(c, req.Operator)); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "result": outcome})
}

type batchConfirmRequest struct {
	IDs      []int64 `json:"ids"      binding:"required,min=1"`
	Operator string  `json:"operator"`
}

// BatchConfirm confirms each id independently and reports per-id failures.
func (h *JudgmentHandler) BatchConfirm(c *gin.Context) {
	var req batchConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, h.judgments.BatchConfirm(c.Request.Context(), req.IDs, operator(c, req.Operator)))
}
