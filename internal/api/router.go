package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/executor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/judgment"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/monitor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/pipeline"
	"github.com/jonesrussell/north-cloud/regwatch/internal/preset"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/scheduler"
)

// Services are the components the API exposes.
type Services struct {
	Crawlers  *registry.CrawlerRegistry
	Presets   *preset.Service
	Scheduler *scheduler.Scheduler
	Executor  *executor.Executor
	Monitor   *monitor.Monitor
	Pipeline  *pipeline.Pipeline
	Judgments *judgment.Service
	Blacklist *blacklist.Service
}

// RouterConfig configures the router.
type RouterConfig struct {
	ServiceName string
	Version     string
	Debug       bool
	CORSOrigins []string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Checks  map[string]HealthCheck
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc Services, cfg RouterConfig, log logger.Logger) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewNop()
	}

	router := gin.New()
	router.Use(CORSMiddleware(cfg.CORSOrigins))
	router.Use(RequestID(log))
	router.Use(LoggerMiddleware(log))
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler(cfg.ServiceName, cfg.Version, time.Now(), cfg.Checks))
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")

	crawlers := NewCrawlerHandler(svc.Crawlers, svc.Monitor)
	cg := v1.Group("/crawlers")
	cg.GET("", crawlers.List)
	cg.GET("/stats", crawlers.Stats)
	cg.GET("/:name", crawlers.Get)
	cg.GET("/:name/statistics", crawlers.Statistics)
	cg.POST("/:name/enable", crawlers.Enable)
	cg.POST("/:name/disable", crawlers.Disable)
	cg.POST("/:name/validate", crawlers.Validate)

	presets := NewPresetHandler(svc.Presets)
	pg := v1.Group("/presets")
	pg.POST("", presets.Create)
	pg.GET("", presets.List)
	pg.POST("/validate", presets.Validate)
	pg.GET("/:id", presets.Get)
	pg.PUT("/:id", presets.Update)
	pg.DELETE("/:id", presets.Delete)
	pg.POST("/:id/copy", presets.Copy)

	tasks := NewTaskHandler(svc.Scheduler, svc.Crawlers, svc.Monitor)
	tg := v1.Group("/tasks")
	tg.GET("", tasks.List)
	tg.POST("", tasks.Create)
	tg.GET("/:id", tasks.Get)
	tg.DELETE("/:id", tasks.Delete)
	tg.PUT("/:id/cron", tasks.Reschedule)
	tg.POST("/:id/pause", tasks.Pause)
	tg.POST("/:id/resume", tasks.Resume)
	tg.POST("/:id/trigger", tasks.Trigger)
	tg.GET("/:id/statistics", tasks.Statistics)

	executions := NewExecutionHandler(svc.Monitor, svc.Executor)
	eg := v1.Group("/executions")
	eg.GET("", executions.History)
	eg.GET("/running", executions.Running)
	eg.GET("/:id", executions.Get)
	eg.POST("/:id/retry", executions.Retry)
	v1.GET("/monitor/overview", executions.Overview)

	audit := NewAuditHandler(svc.Pipeline)
	ag := v1.Group("/audit")
	ag.POST("/preview", audit.Preview)
	ag.POST("/execute", audit.Execute)
	ag.POST("/stage", audit.Stage)
	ag.GET("/tasks", audit.ListTasks)
	ag.POST("/tasks", audit.Submit)
	ag.GET("/tasks/:id", audit.Progress)
	ag.POST("/tasks/:id/cancel", audit.Cancel)

	judgments := NewJudgmentHandler(svc.Judgments)
	jg := v1.Group("/judgments")
	jg.GET("", judgments.List)
	jg.GET("/counts", judgments.Counts)
	jg.GET("/statistics", judgments.Statistics)
	jg.POST("/batch-confirm", judgments.BatchConfirm)
	jg.GET("/:id", judgments.Get)
	jg.POST("/:id/confirm", judgments.Confirm)
	jg.POST("/:id/reject", judgments.Reject)

	keywords := NewBlacklistHandler(svc.Blacklist)
	bg := v1.Group("/blacklist")
	bg.GET("", keywords.List)
	bg.POST("", keywords.Add)
	bg.DELETE("/:keyword", keywords.Remove)

	return router
}
