// handlers_upload.go - File upload operation handlers
package api

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/storage"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store     storage.Store
	ingestMgr IngestManager
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, ingestMgr IngestManager) UploadHandler {
	return &UploadHandlerImpl{
		store:     store,
		ingestMgr: ingestMgr,
	}
}

// HandleUploadFile accepts a file as base64 JSON and saves it to storage
func (h *UploadHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	// Decode base64 content
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.SaveBytes(req.Name, req.kind(), decoded)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadChunk accepts a single chunk of a chunked upload
func (h *UploadHandlerImpl) HandleUploadChunk(c echo.Context) error {
	var req uploadChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	// Decode base64 chunk data
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	if err := h.store.SaveChunk(req.UploadID, req.ChunkIndex, bytesReader(decoded)); err != nil {
		return NewInternalError("failed to save chunk", err)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload completes a chunked upload
func (h *UploadHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	info, err := h.store.CompleteChunkedUpload(req.UploadID, req.Name, storage.ClassifyKind(req.Name), req.TotalChunks)
	if err != nil {
		return NewInternalError("failed to assemble chunks", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadBinary accepts raw binary file upload (multipart/form-data).
// Multiple "file" parts may be sent at once, which is the normal path
// for image batches.
func (h *UploadHandlerImpl) HandleUploadBinary(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}

	files := form.File["file"]
	if len(files) == 0 {
		return NewBadRequestError("no file provided", nil)
	}

	infos := make([]*models.FileInfo, 0, len(files))
	for _, file := range files {
		src, err := file.Open()
		if err != nil {
			return NewInternalError("failed to open uploaded file", err)
		}

		info, err := h.store.Save(file.Filename, storage.ClassifyKind(file.Filename), src)
		src.Close()
		if err != nil {
			return NewInternalError("failed to save file", err)
		}
		infos = append(infos, info)
	}

	if len(infos) == 1 {
		return c.JSON(http.StatusCreated, infos[0])
	}
	return c.JSON(http.StatusCreated, infos)
}

// HandleGetRecentFiles returns recently uploaded files, optionally
// filtered by kind (?kind=log or ?kind=image)
func (h *UploadHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	kind := models.FileKind(c.QueryParam("kind"))
	if kind != "" && kind != models.FileKindLog && kind != models.FileKindImage {
		return NewValidationError("kind")
	}

	files, err := h.store.List(kind, 50)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *UploadHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.GetFile(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a file and its associated parsed data
func (h *UploadHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}

	// Release parsed telemetry held for this log
	if h.ingestMgr != nil {
		h.ingestMgr.DropParsed(id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the name of a file
func (h *UploadHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.Name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// Request/Response types

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
	Kind string `json:"kind"` // Optional, inferred from name when empty
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

func (r *uploadFileRequest) kind() models.FileKind {
	switch models.FileKind(r.Kind) {
	case models.FileKindLog, models.FileKindImage:
		return models.FileKind(r.Kind)
	}
	return storage.ClassifyKind(r.Name)
}

type uploadChunkRequest struct {
	UploadID    string `json:"uploadId"`
	ChunkIndex  int    `json:"chunkIndex"`
	Data        string `json:"data"` // Base64-encoded chunk
	TotalChunks int    `json:"totalChunks"`
}

func (r *uploadChunkRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type completeUploadRequest struct {
	UploadID    string `json:"uploadId"`
	Name        string `json:"name"`
	TotalChunks int    `json:"totalChunks"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}
