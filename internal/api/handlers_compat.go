// handlers_compat.go - Log/image compatibility analysis handler
package api

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/vineyard-analyzer/backend/internal/compat"
	"github.com/vineyard-analyzer/backend/internal/imagemeta"
	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/storage"
	"github.com/vineyard-analyzer/backend/internal/telemetry"
)

// CompatHandlerImpl implements the CompatHandler interface
type CompatHandlerImpl struct {
	store     storage.Store
	ingestMgr IngestManager
	aliases   models.ColumnAliases
}

// NewCompatHandler creates a new compatibility handler instance
func NewCompatHandler(store storage.Store, ingestMgr IngestManager, aliases models.ColumnAliases) CompatHandler {
	return &CompatHandlerImpl{
		store:     store,
		ingestMgr: ingestMgr,
		aliases:   aliases,
	}
}

type compatCheckRequest struct {
	LogIDs   []string `json:"logIds"`
	ImageIDs []string `json:"imageIds"`
}

func (r *compatCheckRequest) validate() error {
	if len(r.LogIDs) == 0 {
		return NewValidationError("logIds")
	}
	if len(r.ImageIDs) == 0 {
		return NewValidationError("imageIds")
	}
	return nil
}

// HandleCompatibilityCheck classifies every (image, log) pair by time
// overlap before a run is started
func (h *CompatHandlerImpl) HandleCompatibilityCheck(c echo.Context) error {
	var req compatCheckRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	logs := make([]models.LogSummary, 0, len(req.LogIDs))
	for _, logID := range req.LogIDs {
		summary, err := h.summarizeLog(logID)
		if err != nil {
			return err
		}
		logs = append(logs, *summary)
	}

	images := make([]compat.ImageTimestamp, 0, len(req.ImageIDs))
	for _, imageID := range req.ImageIDs {
		img, err := h.imageTimestamp(imageID)
		if err != nil {
			return err
		}
		images = append(images, *img)
	}

	report := compat.CheckOverlap(logs, images)
	return c.JSON(http.StatusOK, report)
}

// summarizeLog prefers the decoded output when the log has already been
// ingested, and falls back to the raw upload otherwise.
func (h *CompatHandlerImpl) summarizeLog(logID string) (*models.LogSummary, error) {
	info, err := h.store.GetFile(logID)
	if err != nil {
		return nil, NewNotFoundError("log", logID)
	}
	if info.Kind != models.FileKindLog {
		return nil, NewWrongFileKindError(logID, "flight log")
	}

	path, ok := h.ingestMgr.GetDecodedPath(logID)
	if !ok {
		path, err = h.store.GetFilePath(logID)
		if err != nil {
			return nil, NewNotFoundError("log", logID)
		}
	}

	summary, err := telemetry.SummarizeFile(path, logID, info.Name, h.aliases)
	if err != nil {
		return nil, NewLogUnreadableError(info.Name, err)
	}
	return summary, nil
}

func (h *CompatHandlerImpl) imageTimestamp(imageID string) (*compat.ImageTimestamp, error) {
	info, err := h.store.GetFile(imageID)
	if err != nil {
		return nil, NewNotFoundError("image", imageID)
	}
	if info.Kind != models.FileKindImage {
		return nil, NewWrongFileKindError(imageID, "image")
	}

	path, err := h.store.GetFilePath(imageID)
	if err != nil {
		return nil, NewNotFoundError("image", imageID)
	}

	img := &compat.ImageTimestamp{Name: info.Name}

	// Stored files carry UUID names on disk, so pattern matching
	// runs against the original name from metadata.
	f, err := os.Open(path)
	if err != nil {
		return img, nil
	}
	defer f.Close()

	if ts, ok := imagemeta.ExtractTimestamp(info.Name, f); ok {
		img.Timestamp = &ts
	}
	return img, nil
}
