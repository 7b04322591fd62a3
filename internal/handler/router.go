package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/classmate/internal/metrics"
	"github.com/xxxsen/classmate/internal/middleware"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Chat      *ChatHandler
	Health    *HealthHandler
	// RateLimit throttles the routes that call the language model.
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Health)
	api.GET("/metrics", gin.WrapH(metrics.Handler()))

	api.POST("/documents/upload", deps.Documents.Upload)
	api.GET("/documents", deps.Documents.List)
	api.DELETE("/documents/:filename", deps.Documents.Delete)
	api.POST("/chat/debug-echo", deps.Chat.DebugEcho)

	llmGroup := api.Group("")
	llmGroup.Use(middleware.RateLimit(deps.RateLimit))
	llmGroup.GET("/documents/:filename/explain", deps.Documents.Explain)
	llmGroup.POST("/documents/:filename/ask", deps.Documents.Ask)
	llmGroup.POST("/chat/send", deps.Chat.Send)
}
