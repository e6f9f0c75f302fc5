// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store     storage.Store
	IngestMgr IngestManager
	RunMgr    RunManager
	Aliases   models.ColumnAliases
	Version   string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Upload   UploadHandler
	Ingest   IngestHandler
	Annotate AnnotateHandler
	Compat   CompatHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version),
		Upload:   NewUploadHandler(deps.Store, deps.IngestMgr),
		Ingest:   NewIngestHandler(deps.Store, deps.IngestMgr, deps.Aliases),
		Annotate: NewAnnotateHandler(deps.RunMgr, deps.IngestMgr),
		Compat:   NewCompatHandler(deps.Store, deps.IngestMgr, deps.Aliases),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// File upload routes
	uploadGroup := e.Group("/api/files")
	uploadGroup.POST("/upload", handlers.Upload.HandleUploadFile)
	uploadGroup.POST("/upload/chunk", handlers.Upload.HandleUploadChunk)
	uploadGroup.POST("/upload/complete", handlers.Upload.HandleCompleteUpload)
	uploadGroup.POST("/upload/binary", handlers.Upload.HandleUploadBinary)
	uploadGroup.GET("/recent", handlers.Upload.HandleGetRecentFiles)
	uploadGroup.GET("/:id", handlers.Upload.HandleGetFile)
	uploadGroup.DELETE("/:id", handlers.Upload.HandleDeleteFile)
	uploadGroup.PUT("/:id", handlers.Upload.HandleRenameFile)

	// Log ingestion routes
	ingestGroup := e.Group("/api/ingest")
	ingestGroup.POST("", handlers.Ingest.HandleStartIngest)
	ingestGroup.GET("/:jobId/status", handlers.Ingest.HandleIngestStatus)
	ingestGroup.GET("/:jobId/progress", handlers.Ingest.HandleIngestProgressStream)
	ingestGroup.GET("/logs/:id/summary", handlers.Ingest.HandleLogSummary)

	// Annotation run routes
	runGroup := e.Group("/api/annotate")
	runGroup.POST("", handlers.Annotate.HandleStartRun)
	runGroup.GET("/:runId/status", handlers.Annotate.HandleRunStatus)
	runGroup.POST("/:runId/keepalive", handlers.Annotate.HandleRunKeepAlive)
	runGroup.POST("/:runId/cancel", handlers.Annotate.HandleRunCancel)
	runGroup.GET("/:runId/progress", handlers.Annotate.HandleRunProgressStream)
	runGroup.GET("/:runId/results", handlers.Annotate.HandleRunResults)
	runGroup.GET("/:runId/results/msgpack", handlers.Annotate.HandleRunResultsMsgpack)
	runGroup.GET("/:runId/summary", handlers.Annotate.HandleRunSummary)
	runGroup.GET("/:runId/records", handlers.Annotate.HandleRunRecords)
	runGroup.GET("/:runId/records/range", handlers.Annotate.HandleRunRecordRange)
	runGroup.GET("/:runId/export", handlers.Annotate.HandleExport)

	// Compatibility analysis
	e.POST("/api/compat", handlers.Compat.HandleCompatibilityCheck)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, deps *Dependencies) {
	e.GET("/api/ws/uploads", NewUploadSocket(deps.Store, deps.RunMgr).Handle)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
