// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vineyard-analyzer/backend/internal/ingest"
	"github.com/vineyard-analyzer/backend/internal/models"
)

// UploadHandler handles file upload operations
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// IngestHandler handles flight log ingestion operations
type IngestHandler interface {
	HandleStartIngest(c echo.Context) error
	HandleIngestStatus(c echo.Context) error
	HandleIngestProgressStream(c echo.Context) error
	HandleLogSummary(c echo.Context) error
}

// AnnotateHandler handles batch annotation run operations
type AnnotateHandler interface {
	HandleStartRun(c echo.Context) error
	HandleRunStatus(c echo.Context) error
	HandleRunKeepAlive(c echo.Context) error
	HandleRunCancel(c echo.Context) error
	HandleRunProgressStream(c echo.Context) error
	HandleRunResults(c echo.Context) error
	HandleRunResultsMsgpack(c echo.Context) error
	HandleRunSummary(c echo.Context) error
	HandleRunRecords(c echo.Context) error
	HandleRunRecordRange(c echo.Context) error
	HandleExport(c echo.Context) error
}

// CompatHandler handles log/image compatibility analysis
type CompatHandler interface {
	HandleCompatibilityCheck(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// IngestManager defines the interface for log ingestion management.
// This allows mocking in tests.
type IngestManager interface {
	StartJob(fileID, fileName string) *ingest.Job
	GetJob(id string) (*ingest.Job, bool)
	GetParsed(fileID string) (*models.ParsedFlightLog, bool)
	GetDecodedPath(fileID string) (string, bool)
	DropParsed(fileID string)
}

// RunManager defines the interface for annotation run management.
type RunManager interface {
	StartRun(logID string, imageIDs []string) (*models.AnnotationSession, error)
	GetSession(id string) (*models.AnnotationSession, bool)
	TouchSession(id string) bool
	CancelRun(id string) bool
	GetResults(id string, page, pageSize int) ([]models.AnnotationRecord, int, bool)
	GetAllResults(id string) ([]models.AnnotationRecord, bool)
	GetSummary(id string) (*models.FlightSummary, bool)
	GetRecords(id string, page, pageSize int) ([]models.FlightRecord, int, bool)
	GetRecordRange(id string, startTs, endTs time.Time) ([]models.FlightRecord, bool)
}
