package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// BlacklistHandler serves keyword blacklist management.
type BlacklistHandler struct {
	blacklist *blacklist.Service
}

// NewBlacklistHandler creates a BlacklistHandler.
func NewBlacklistHandler(svc *blacklist.Service) *BlacklistHandler {
	return &BlacklistHandler{blacklist: svc}
}

func (h *BlacklistHandler) List(c *gin.Context) {
	keywords, err := h.blacklist.List(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keywords": keywords, "count": len(keywords)})
}

type addKeywordsRequest struct {
	Keywords []string `json:"keywords" binding:"required,min=1"`
}

// Add stores new keywords. They apply from the next preview or task.
func (h *BlacklistHandler) Add(c *gin.Context) {
	var req addKeywordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	added, err := h.blacklist.Add(c.Request.Context(), req.Keywords...)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

func (h *BlacklistHandler) Remove(c *gin.Context) {
	keyword := c.Param("keyword")
	removed, err := h.blacklist.Remove(c.Request.Context(), keyword)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !removed {
		respondErr(c, domain.NotFoundf("keyword %q", keyword))
		return
	}
	c.Status(http.StatusNoContent)
}
