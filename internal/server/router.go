package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	googlemonitoring "github.com/promptrelay/promptrelay/googleMonitoring"
	"github.com/promptrelay/promptrelay/internal/config"
	"github.com/promptrelay/promptrelay/internal/handlers"
	"github.com/promptrelay/promptrelay/internal/middleware"
	"github.com/promptrelay/promptrelay/llm"
)

// NewRouter wires middleware and routes. registry backs both the recorded
// metrics and the /metrics endpoint.
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	llmClient llm.Client,
	monitoringClient *googlemonitoring.MonitoringClient,
	registry *prometheus.Registry) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadMemory

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Cors(cfg.Cors))

	// Metrics handler
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Health Handler
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.IsHealthy)

	// Docs Handler
	docsHandler := handlers.NewDocsHandler()
	router.GET("/openapi.json", docsHandler.OpenAPI)
	router.GET("/docs", docsHandler.Docs)

	// Chat Handler
	chatHandler := handlers.NewChatHandler(llmClient, monitoringClient, logger, cfg.Handlers.ChatHandler)
	router.POST("/", chatHandler.Prompt)
	router.POST("/uploadfile/", chatHandler.UploadFile)

	return router
}
