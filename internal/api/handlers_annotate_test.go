// handlers_annotate_test.go - Tests for annotation run handlers
package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/vineyard-analyzer/backend/internal/models"
)

func resultAt(name string, ts time.Time) models.AnnotationRecord {
	return models.AnnotationRecord{
		ImageName: name,
		Method:    models.MatchTimestamp,
		Timestamp: &ts,
		Latitude:  45.1,
		Longitude: 7.6,
	}
}

func recordAt(ts time.Time) models.FlightRecord {
	return models.FlightRecord{
		Timestamp: &ts,
		Latitude:  45.1,
		Longitude: 7.6,
	}
}

func TestAnnotateHandler_HandleStartRun(t *testing.T) {
	t.Run("starts run", func(t *testing.T) {
		handler := NewAnnotateHandler(newStubRunManager(), newStubIngestManager())

		c, rec := newTestContext(t, http.MethodPost, "/api/annotate", startRunRequest{
			LogID:    "log-1",
			ImageIDs: []string{"img-1", "img-2"},
		})
		if err := handler.HandleStartRun(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusAccepted {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
		}

		var sess models.AnnotationSession
		decodeJSON(t, rec, &sess)
		if sess.LogID != "log-1" {
			t.Errorf("logId = %q, want log-1", sess.LogID)
		}
		if sess.ImageCount != 2 {
			t.Errorf("imageCount = %d, want 2", sess.ImageCount)
		}
	})

	t.Run("missing logId", func(t *testing.T) {
		handler := NewAnnotateHandler(newStubRunManager(), newStubIngestManager())
		c, _ := newTestContext(t, http.MethodPost, "/api/annotate", startRunRequest{ImageIDs: []string{"img-1"}})
		err := handler.HandleStartRun(c)
		wantAPIError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("empty imageIds", func(t *testing.T) {
		handler := NewAnnotateHandler(newStubRunManager(), newStubIngestManager())
		c, _ := newTestContext(t, http.MethodPost, "/api/annotate", startRunRequest{LogID: "log-1"})
		err := handler.HandleStartRun(c)
		wantAPIError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("manager rejection becomes conflict", func(t *testing.T) {
		runMgr := newStubRunManager()
		runMgr.startErr = fmt.Errorf("log log-1 is not ingested")
		handler := NewAnnotateHandler(runMgr, newStubIngestManager())

		c, _ := newTestContext(t, http.MethodPost, "/api/annotate", startRunRequest{
			LogID:    "log-1",
			ImageIDs: []string{"img-1"},
		})
		err := handler.HandleStartRun(c)
		wantAPIError(t, err, http.StatusConflict, "CONFLICT")
	})
}

func TestAnnotateHandler_HandleRunStatus(t *testing.T) {
	runMgr := newStubRunManager()
	sess := models.NewAnnotationSession("run-1", "log-1", []string{"img-1"})
	sess.Status = models.SessionStatusAnnotating
	sess.Progress = 42.5
	runMgr.sessions["run-1"] = sess
	handler := NewAnnotateHandler(runMgr, newStubIngestManager())

	c, rec := newTestContext(t, http.MethodGet, "/api/annotate/run-1/status", nil)
	c.SetParamNames("runId")
	c.SetParamValues("run-1")

	if err := handler.HandleRunStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got models.AnnotationSession
	decodeJSON(t, rec, &got)
	if got.Progress != 42.5 {
		t.Errorf("progress = %v, want 42.5", got.Progress)
	}

	// Viewing a run keeps it alive
	if len(runMgr.touched) != 1 {
		t.Errorf("touched = %v, want one entry", runMgr.touched)
	}
}

func TestAnnotateHandler_HandleRunCancel(t *testing.T) {
	runMgr := newStubRunManager()
	runMgr.sessions["run-1"] = models.NewAnnotationSession("run-1", "log-1", []string{"img-1"})
	handler := NewAnnotateHandler(runMgr, newStubIngestManager())

	c, rec := newTestContext(t, http.MethodPost, "/api/annotate/run-1/cancel", nil)
	c.SetParamNames("runId")
	c.SetParamValues("run-1")

	if err := handler.HandleRunCancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(runMgr.cancelled) != 1 {
		t.Errorf("cancelled = %v, want one entry", runMgr.cancelled)
	}

	c2, _ := newTestContext(t, http.MethodPost, "/api/annotate/missing/cancel", nil)
	c2.SetParamNames("runId")
	c2.SetParamValues("missing")
	err := handler.HandleRunCancel(c2)
	wantAPIError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestAnnotateHandler_HandleRunResults(t *testing.T) {
	runMgr := newStubRunManager()
	runMgr.sessions["run-1"] = models.NewAnnotationSession("run-1", "log-1", nil)

	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	all := make([]models.AnnotationRecord, 0, 25)
	for i := 0; i < 25; i++ {
		all = append(all, resultAt(fmt.Sprintf("IMG_%04d.jpg", i), base.Add(time.Duration(i)*time.Second)))
	}
	runMgr.results["run-1"] = all
	handler := NewAnnotateHandler(runMgr, newStubIngestManager())

	c, rec := newTestContext(t, http.MethodGet, "/api/annotate/run-1/results?page=2&pageSize=10", nil)
	c.SetParamNames("runId")
	c.SetParamValues("run-1")

	if err := handler.HandleRunResults(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp resultsResponse
	decodeJSON(t, rec, &resp)
	if resp.Total != 25 {
		t.Errorf("total = %d, want 25", resp.Total)
	}
	if len(resp.Results) != 10 {
		t.Errorf("results = %d, want 10", len(resp.Results))
	}
	if resp.Results[0].ImageName != "IMG_0010.jpg" {
		t.Errorf("first result = %q, want IMG_0010.jpg", resp.Results[0].ImageName)
	}
}

func TestAnnotateHandler_HandleRunRecordRange(t *testing.T) {
	runMgr := newStubRunManager()
	runMgr.sessions["run-1"] = models.NewAnnotationSession("run-1", "log-1", nil)

	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	records := make([]models.FlightRecord, 0, 60)
	for i := 0; i < 60; i++ {
		records = append(records, recordAt(base.Add(time.Duration(i)*time.Second)))
	}
	runMgr.records["run-1"] = records
	handler := NewAnnotateHandler(runMgr, newStubIngestManager())

	start := base.Add(10 * time.Second).UnixMilli()
	end := base.Add(14 * time.Second).UnixMilli()
	c, rec := newTestContext(t, http.MethodGet,
		fmt.Sprintf("/api/annotate/run-1/records/range?start=%d&end=%d", start, end), nil)
	c.SetParamNames("runId")
	c.SetParamValues("run-1")

	if err := handler.HandleRunRecordRange(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []models.FlightRecord
	decodeJSON(t, rec, &got)
	if len(got) != 5 {
		t.Errorf("record count = %d, want 5", len(got))
	}

	t.Run("invalid start", func(t *testing.T) {
		c, _ := newTestContext(t, http.MethodGet, "/api/annotate/run-1/records/range?start=abc&end=5", nil)
		c.SetParamNames("runId")
		c.SetParamValues("run-1")
		err := handler.HandleRunRecordRange(c)
		wantAPIError(t, err, http.StatusBadRequest, "BAD_REQUEST")
	})
}

func TestAnnotateHandler_HandleExport(t *testing.T) {
	runMgr := newStubRunManager()
	sess := models.NewAnnotationSession("run-1", "log-1", nil)
	sess.Status = models.SessionStatusComplete
	runMgr.sessions["run-1"] = sess

	ts := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	runMgr.results["run-1"] = []models.AnnotationRecord{resultAt("IMG_0001.jpg", ts)}
	handler := NewAnnotateHandler(runMgr, newStubIngestManager())

	t.Run("csv export", func(t *testing.T) {
		c, rec := newTestContext(t, http.MethodGet, "/api/annotate/run-1/export?format=csv", nil)
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		if err := handler.HandleExport(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
			t.Errorf("content type = %q, want text/csv", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "annotations_run-1.csv") {
			t.Errorf("content disposition = %q", cd)
		}
		body := rec.Body.String()
		if !strings.HasPrefix(body, "image_name,") {
			t.Errorf("missing header row: %q", body)
		}
		if !strings.Contains(body, "IMG_0001.jpg") {
			t.Errorf("missing image row: %q", body)
		}
	})

	t.Run("defaults to csv", func(t *testing.T) {
		c, rec := newTestContext(t, http.MethodGet, "/api/annotate/run-1/export", nil)
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		if err := handler.HandleExport(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
			t.Errorf("content type = %q, want text/csv", ct)
		}
	})

	t.Run("xlsx export", func(t *testing.T) {
		c, rec := newTestContext(t, http.MethodGet, "/api/annotate/run-1/export?format=xlsx", nil)
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		if err := handler.HandleExport(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(rec.Body.String(), "PK") {
			t.Error("xlsx output is not a zip archive")
		}
	})

	t.Run("kml export pulls parsed records", func(t *testing.T) {
		ingestMgr := newStubIngestManager()
		ingestMgr.parsed["log-1"] = &models.ParsedFlightLog{
			Records: []models.FlightRecord{recordAt(ts)},
		}
		handler := NewAnnotateHandler(runMgr, ingestMgr)

		c, rec := newTestContext(t, http.MethodGet, "/api/annotate/run-1/export?format=kml", nil)
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		if err := handler.HandleExport(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "<kml") {
			t.Errorf("missing kml root: %q", body)
		}
		if !strings.Contains(body, "7.6") {
			t.Errorf("missing coordinates: %q", body)
		}
	})

	t.Run("kml rejected after records dropped", func(t *testing.T) {
		handler := NewAnnotateHandler(runMgr, newStubIngestManager())

		c, _ := newTestContext(t, http.MethodGet, "/api/annotate/run-1/export?format=kml", nil)
		c.SetParamNames("runId")
		c.SetParamValues("run-1")
		err := handler.HandleExport(c)
		wantAPIError(t, err, http.StatusConflict, "RECORDS_DROPPED")
	})

	t.Run("incomplete run rejected", func(t *testing.T) {
		pending := models.NewAnnotationSession("run-2", "log-1", nil)
		runMgr.sessions["run-2"] = pending

		c, _ := newTestContext(t, http.MethodGet, "/api/annotate/run-2/export?format=csv", nil)
		c.SetParamNames("runId")
		c.SetParamValues("run-2")
		err := handler.HandleExport(c)
		wantAPIError(t, err, http.StatusConflict, "RUN_NOT_READY")
	})

	t.Run("unknown format", func(t *testing.T) {
		c, _ := newTestContext(t, http.MethodGet, "/api/annotate/run-1/export?format=pdf", nil)
		c.SetParamNames("runId")
		c.SetParamValues("run-1")
		err := handler.HandleExport(c)
		wantAPIError(t, err, http.StatusBadRequest, "UNSUPPORTED_FORMAT")
	})
}
