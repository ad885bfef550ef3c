package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/preset"
)

// PresetHandler serves preset CRUD.
type PresetHandler struct {
	presets *preset.Service
}

// NewPresetHandler creates a PresetHandler.
func NewPresetHandler(presets *preset.Service) *PresetHandler {
	return &PresetHandler{presets: presets}
}

func (h *PresetHandler) Create(c *gin.Context) {
	var req preset.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	req.CreatedBy = operator(c, req.CreatedBy)

	p, err := h.presets.Create(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *PresetHandler) Get(c *gin.Context) {
	p, err := h.presets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// List supports crawler_name, country_code, crawler_type and enabled filters.
func (h *PresetHandler) List(c *gin.Context) {
	filter := domain.PresetFilter{
		CrawlerName: c.Query("crawler_name"),
		CountryCode: c.Query("country_code"),
		CrawlerType: c.Query("crawler_type"),
		PageRequest: pageRequest(c),
	}
	if raw := c.Query("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "enabled must be a boolean")
			return
		}
		filter.Enabled = &enabled
	}

	page, err := h.presets.List(c.Request.Context(), filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PresetHandler) Update(c *gin.Context) {
	var req preset.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	req.UpdatedBy = operator(c, req.UpdatedBy)

	p, err := h.presets.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PresetHandler) Delete(c *gin.Context) {
	if err := h.presets.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type copyPresetRequest struct {
	Name     string `json:"name"`
	Operator string `json:"operator"`
}

// Copy duplicates a preset. The copy starts disabled and unscheduled.
func (h *PresetHandler) Copy(c *gin.Context) {
	var req copyPresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	p, err := h.presets.Copy(c.Request.Context(), c.Param("id"), req.Name, operator(c, req.Operator))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type validatePresetRequest struct {
	CrawlerName string        `json:"crawler_name" binding:"required"`
	Parameters  domain.Params `json:"parameters"`
}

func (h *PresetHandler) Validate(c *gin.Context) {
	var req validatePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.presets.ValidateDetailed(req.CrawlerName, req.Parameters); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}
