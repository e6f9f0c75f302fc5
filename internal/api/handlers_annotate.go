// handlers_annotate.go - Batch annotation run handlers
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vineyard-analyzer/backend/internal/export"
	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/telemetry"
)

// AnnotateHandlerImpl implements the AnnotateHandler interface
type AnnotateHandlerImpl struct {
	runMgr    RunManager
	ingestMgr IngestManager
}

// NewAnnotateHandler creates a new annotation handler instance
func NewAnnotateHandler(runMgr RunManager, ingestMgr IngestManager) AnnotateHandler {
	return &AnnotateHandlerImpl{
		runMgr:    runMgr,
		ingestMgr: ingestMgr,
	}
}

// HandleStartRun starts a batch annotation run
func (h *AnnotateHandlerImpl) HandleStartRun(c echo.Context) error {
	var req startRunRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.LogID == "" {
		return NewValidationError("logId")
	}
	if len(req.ImageIDs) == 0 {
		return NewValidationError("imageIds")
	}

	sess, err := h.runMgr.StartRun(req.LogID, req.ImageIDs)
	if err != nil {
		return NewConflictError(err.Error())
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleRunStatus returns the current status of a run
func (h *AnnotateHandlerImpl) HandleRunStatus(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	sess, ok := h.runMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("run", id)
	}

	// Touch run to prevent cleanup while being viewed
	h.runMgr.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleRunKeepAlive extends run lifetime for active viewing
func (h *AnnotateHandlerImpl) HandleRunKeepAlive(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	if ok := h.runMgr.TouchSession(id); !ok {
		return NewNotFoundError("run", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRunCancel aborts an in-flight run
func (h *AnnotateHandlerImpl) HandleRunCancel(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	if ok := h.runMgr.CancelRun(id); !ok {
		return NewNotFoundError("run", id)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleRunProgressStream streams run progress via SSE
func (h *AnnotateHandlerImpl) HandleRunProgressStream(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	setSSEHeaders(c)
	c.Response().WriteHeader(http.StatusOK)

	sess, ok := h.runMgr.GetSession(id)
	if !ok {
		sendSSEError(c, "run not found")
		return nil
	}
	sendSSEData(c, sess)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(10 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			sess, ok := h.runMgr.GetSession(id)
			if !ok {
				sendSSEError(c, "run not found")
				return nil
			}

			sendSSEData(c, sess)

			if sess.Status == models.SessionStatusComplete ||
				sess.Status == models.SessionStatusError {
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

// HandleRunResults returns paginated annotation results
func (h *AnnotateHandlerImpl) HandleRunResults(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	page, pageSize := pageParams(c)

	results, total, ok := h.runMgr.GetResults(id, page, pageSize)
	if !ok {
		return NewNotFoundError("run results", id)
	}

	h.runMgr.TouchSession(id)

	return c.JSON(http.StatusOK, resultsResponse{
		Results:  results,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// HandleRunResultsMsgpack returns the full result set msgpack-encoded
func (h *AnnotateHandlerImpl) HandleRunResultsMsgpack(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	results, ok := h.runMgr.GetAllResults(id)
	if !ok {
		return NewNotFoundError("run results", id)
	}

	h.runMgr.TouchSession(id)

	c.Response().Header().Set(echo.HeaderContentType, "application/x-msgpack")
	c.Response().WriteHeader(http.StatusOK)
	return export.WriteMsgpack(c.Response(), results)
}

// HandleRunSummary returns the flight summary computed for a run
func (h *AnnotateHandlerImpl) HandleRunSummary(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	summary, ok := h.runMgr.GetSummary(id)
	if !ok {
		return NewNotFoundError("run summary", id)
	}

	return c.JSON(http.StatusOK, summary)
}

// HandleRunRecords returns paginated flight records backing a run
func (h *AnnotateHandlerImpl) HandleRunRecords(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	page, pageSize := pageParams(c)

	records, total, ok := h.runMgr.GetRecords(id, page, pageSize)
	if !ok {
		return NewNotFoundError("run records", id)
	}

	return c.JSON(http.StatusOK, recordsResponse{
		Records:  records,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// HandleRunRecordRange returns flight records within a time window
func (h *AnnotateHandlerImpl) HandleRunRecordRange(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	startTs, err := parseTimestamp(c.QueryParam("start"))
	if err != nil {
		return NewBadRequestError("invalid start time", err)
	}
	endTs, err := parseTimestamp(c.QueryParam("end"))
	if err != nil {
		return NewBadRequestError("invalid end time", err)
	}

	records, ok := h.runMgr.GetRecordRange(id, startTs, endTs)
	if !ok {
		return NewNotFoundError("run records", id)
	}

	return c.JSON(http.StatusOK, records)
}

// HandleExport writes the run's results in the requested format
// (?format=csv|json|msgpack|xlsx|kml|records)
func (h *AnnotateHandlerImpl) HandleExport(c echo.Context) error {
	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	format := c.QueryParam("format")
	if format == "" {
		format = "csv"
	}

	sess, ok := h.runMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("run", id)
	}
	if sess.Status != models.SessionStatusComplete {
		return NewRunNotReadyError(id)
	}

	h.runMgr.TouchSession(id)

	switch format {
	case "csv", "json", "msgpack", "xlsx":
		results, ok := h.runMgr.GetAllResults(id)
		if !ok {
			return NewNotFoundError("run results", id)
		}
		return h.writeResults(c, id, format, results)

	case "kml":
		parsed, ok := h.ingestMgr.GetParsed(sess.LogID)
		if !ok {
			return NewRecordsDroppedError(id)
		}
		setAttachment(c, "application/vnd.google-earth.kml+xml", fmt.Sprintf("flight_%s.kml", shortID(id)))
		return telemetry.WriteKML(c.Response(), "Flight Path", parsed.Records)

	case "records":
		parsed, ok := h.ingestMgr.GetParsed(sess.LogID)
		if !ok {
			return NewRecordsDroppedError(id)
		}
		setAttachment(c, "text/csv", fmt.Sprintf("records_%s.csv", shortID(id)))
		return export.WriteRecordsCSV(c.Response(), parsed.Records)

	default:
		return NewExportFormatError(format)
	}
}

func (h *AnnotateHandlerImpl) writeResults(c echo.Context, id, format string, results []models.AnnotationRecord) error {
	name := fmt.Sprintf("annotations_%s", shortID(id))
	switch format {
	case "csv":
		setAttachment(c, "text/csv", name+".csv")
		return export.WriteCSV(c.Response(), results)
	case "json":
		setAttachment(c, "application/json", name+".json")
		return export.WriteJSON(c.Response(), results)
	case "msgpack":
		setAttachment(c, "application/x-msgpack", name+".msgpack")
		return export.WriteMsgpack(c.Response(), results)
	case "xlsx":
		setAttachment(c, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", name+".xlsx")
		return export.WriteXLSX(c.Response(), results)
	}
	return NewExportFormatError(format)
}

func setAttachment(c echo.Context, contentType, filename string) {
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Response().WriteHeader(http.StatusOK)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Request/Response types

type startRunRequest struct {
	LogID    string   `json:"logId"`
	ImageIDs []string `json:"imageIds"`
}

type resultsResponse struct {
	Results  []models.AnnotationRecord `json:"results"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"pageSize"`
	Total    int                       `json:"total"`
}

type recordsResponse struct {
	Records  []models.FlightRecord `json:"records"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
	Total    int                   `json:"total"`
}
