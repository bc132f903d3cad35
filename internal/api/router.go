// Package api assembles the judge's HTTP surface: submission intake and
// polling, queue status, health and metrics.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	commonmw "judgecore/internal/common/http/middleware"
	"judgecore/internal/intake"
	"judgecore/internal/ratelimit"
	"judgecore/pkg/utils/logger"
	"judgecore/pkg/utils/response"
)

// RouterConfig wires the HTTP surface. Limiter is optional; without it the
// submit route runs unthrottled.
type RouterConfig struct {
	Intake  *intake.Service
	Limiter *ratelimit.Store
	CORS    commonmw.CORSConfig
}

// BuildRouter returns the configured gin engine.
func BuildRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	subs := NewSubmissionController(cfg.Intake)
	qc := NewQueueController(cfg.Intake)

	api := router.Group("/api/v1")
	if cfg.Limiter != nil {
		api.POST("/submissions", ratelimit.Middleware(cfg.Limiter, ratelimit.ByClientIP), subs.Create)
	} else {
		api.POST("/submissions", subs.Create)
	}
	api.GET("/submissions/:id", subs.GetStatus)
	api.GET("/submissions/:id/source", subs.GetSource)
	api.GET("/queue/status", qc.Status)

	router.GET("/healthz", healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func healthz(c *gin.Context) {
	response.Success(c, map[string]string{"status": "ok"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
