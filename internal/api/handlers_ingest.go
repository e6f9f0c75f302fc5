// handlers_ingest.go - Flight log ingestion handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vineyard-analyzer/backend/internal/ingest"
	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/storage"
	"github.com/vineyard-analyzer/backend/internal/telemetry"
)

// IngestHandlerImpl implements the IngestHandler interface
type IngestHandlerImpl struct {
	store     storage.Store
	ingestMgr IngestManager
	aliases   models.ColumnAliases
}

// NewIngestHandler creates a new ingest handler instance
func NewIngestHandler(store storage.Store, ingestMgr IngestManager, aliases models.ColumnAliases) IngestHandler {
	return &IngestHandlerImpl{
		store:     store,
		ingestMgr: ingestMgr,
		aliases:   aliases,
	}
}

// HandleStartIngest starts async ingestion of an uploaded log file
func (h *IngestHandlerImpl) HandleStartIngest(c echo.Context) error {
	var req startIngestRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}

	info, err := h.store.GetFile(req.FileID)
	if err != nil {
		return NewNotFoundError("file", req.FileID)
	}
	if info.Kind != models.FileKindLog {
		return NewWrongFileKindError(req.FileID, "flight log")
	}

	h.store.SetStatus(info.ID, "decoding")
	job := h.ingestMgr.StartJob(info.ID, info.Name)

	return c.JSON(http.StatusAccepted, job)
}

// HandleIngestStatus returns the current status of an ingestion job
func (h *IngestHandlerImpl) HandleIngestStatus(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}

	job, ok := h.ingestMgr.GetJob(id)
	if !ok {
		return NewNotFoundError("ingest job", id)
	}

	h.syncFileStatus(job)
	return c.JSON(http.StatusOK, job)
}

// HandleIngestProgressStream streams ingestion progress via SSE
func (h *IngestHandlerImpl) HandleIngestProgressStream(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}

	setSSEHeaders(c)
	c.Response().WriteHeader(http.StatusOK)

	job, ok := h.ingestMgr.GetJob(id)
	if !ok {
		sendSSEError(c, "ingest job not found")
		return nil
	}
	sendSSEData(c, job)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			job, ok := h.ingestMgr.GetJob(id)
			if !ok {
				sendSSEError(c, "ingest job not found")
				return nil
			}

			sendSSEData(c, job)

			if job.Status == ingest.StatusReady || job.Status == ingest.StatusError {
				h.syncFileStatus(job)
				return nil
			}

		case <-timeout.C:
			sendSSEError(c, "stream timeout")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// HandleLogSummary returns a capped prefix scan summary of a log. The
// log does not need full ingestion; plain CSV logs are summarized
// straight from the upload.
func (h *IngestHandlerImpl) HandleLogSummary(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.GetFile(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	path, ok := h.ingestMgr.GetDecodedPath(id)
	if !ok {
		// Not ingested yet; only already-decoded logs can be scanned.
		path, err = h.store.GetFilePath(id)
		if err != nil {
			return NewNotFoundError("file", id)
		}
	}

	summary, err := telemetry.SummarizeFile(path, info.ID, info.Name, h.aliases)
	if err != nil {
		return NewLogUnreadableError(info.Name, err)
	}

	return c.JSON(http.StatusOK, summary)
}

// syncFileStatus mirrors job state onto the stored file metadata.
func (h *IngestHandlerImpl) syncFileStatus(job *ingest.Job) {
	switch job.Status {
	case ingest.StatusReady:
		h.store.SetStatus(job.FileID, "ready")
	case ingest.StatusError:
		h.store.SetStatus(job.FileID, "error")
	}
}

// Request types

type startIngestRequest struct {
	FileID string `json:"fileId"`
}
