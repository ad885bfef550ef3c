package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/monitor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
)

// CrawlerHandler serves the crawler catalogue.
type CrawlerHandler struct {
	crawlers *registry.CrawlerRegistry
	monitor  *monitor.Monitor
}

// NewCrawlerHandler creates a CrawlerHandler.
func NewCrawlerHandler(crawlers *registry.CrawlerRegistry, mon *monitor.Monitor) *CrawlerHandler {
	return &CrawlerHandler{crawlers: crawlers, monitor: mon}
}

// List returns crawlers, optionally narrowed by ?country= or ?type=.
func (h *CrawlerHandler) List(c *gin.Context) {
	var defs []domain.CrawlerDefinition
	switch {
	case c.Query("country") != "":
		defs = h.crawlers.ListByCountry(c.Query("country"))
	case c.Query("type") != "":
		defs = h.crawlers.ListByType(c.Query("type"))
	default:
		defs = h.crawlers.List()
	}
	c.JSON(http.StatusOK, gin.H{"crawlers": defs, "count": len(defs)})
}

func (h *CrawlerHandler) Get(c *gin.Context) {
	def, err := h.crawlers.Get(c.Param("name"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (h *CrawlerHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.crawlers.Statistics())
}

// Statistics returns the execution statistics of one crawler.
func (h *CrawlerHandler) Statistics(c *gin.Context) {
	stats, err := h.monitor.CrawlerStatistics(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *CrawlerHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *CrawlerHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *CrawlerHandler) setEnabled(c *gin.Context, enabled bool) {
	name := c.Param("name")
	var ok bool
	if enabled {
		ok = h.crawlers.Enable(name)
	} else {
		ok = h.crawlers.Disable(name)
	}
	if !ok {
		respondErr(c, domain.NotFoundf("crawler %s", name))
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "enabled": enabled})
}

// Validate checks a parameter set against the crawler's schema.
func (h *CrawlerHandler) Validate(c *gin.Context) {
	var params domain.Params
	if err := c.ShouldBindJSON(&params); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.crawlers.Validate(c.Param("name"), params); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}
