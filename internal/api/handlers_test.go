// handlers_test.go - Shared test stubs and helpers for api handlers
package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vineyard-analyzer/backend/internal/ingest"
	"github.com/vineyard-analyzer/backend/internal/models"
)

// stubIngestManager implements the IngestManager interface for tests
type stubIngestManager struct {
	jobs    map[string]*ingest.Job
	parsed  map[string]*models.ParsedFlightLog
	decoded map[string]string
	dropped []string
}

func newStubIngestManager() *stubIngestManager {
	return &stubIngestManager{
		jobs:    make(map[string]*ingest.Job),
		parsed:  make(map[string]*models.ParsedFlightLog),
		decoded: make(map[string]string),
	}
}

func (s *stubIngestManager) StartJob(fileID, fileName string) *ingest.Job {
	job := &ingest.Job{
		ID:        "job-" + fileID,
		FileID:    fileID,
		FileName:  fileName,
		Status:    ingest.StatusHashing,
		CreatedAt: time.Now(),
	}
	s.jobs[job.ID] = job
	return job
}

func (s *stubIngestManager) GetJob(id string) (*ingest.Job, bool) {
	job, ok := s.jobs[id]
	return job, ok
}

func (s *stubIngestManager) GetParsed(fileID string) (*models.ParsedFlightLog, bool) {
	p, ok := s.parsed[fileID]
	return p, ok
}

func (s *stubIngestManager) GetDecodedPath(fileID string) (string, bool) {
	p, ok := s.decoded[fileID]
	return p, ok
}

func (s *stubIngestManager) DropParsed(fileID string) {
	s.dropped = append(s.dropped, fileID)
	delete(s.parsed, fileID)
}

// stubRunManager implements the RunManager interface for tests
type stubRunManager struct {
	sessions  map[string]*models.AnnotationSession
	results   map[string][]models.AnnotationRecord
	summaries map[string]*models.FlightSummary
	records   map[string][]models.FlightRecord
	touched   []string
	cancelled []string
	startErr  error
}

func newStubRunManager() *stubRunManager {
	return &stubRunManager{
		sessions:  make(map[string]*models.AnnotationSession),
		results:   make(map[string][]models.AnnotationRecord),
		summaries: make(map[string]*models.FlightSummary),
		records:   make(map[string][]models.FlightRecord),
	}
}

func (s *stubRunManager) StartRun(logID string, imageIDs []string) (*models.AnnotationSession, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	sess := models.NewAnnotationSession("run-1", logID, imageIDs)
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *stubRunManager) GetSession(id string) (*models.AnnotationSession, bool) {
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *stubRunManager) TouchSession(id string) bool {
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	s.touched = append(s.touched, id)
	return true
}

func (s *stubRunManager) CancelRun(id string) bool {
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	s.cancelled = append(s.cancelled, id)
	return true
}

func (s *stubRunManager) GetResults(id string, page, pageSize int) ([]models.AnnotationRecord, int, bool) {
	all, ok := s.results[id]
	if !ok {
		return nil, 0, false
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []models.AnnotationRecord{}, len(all), true
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), true
}

func (s *stubRunManager) GetAllResults(id string) ([]models.AnnotationRecord, bool) {
	all, ok := s.results[id]
	return all, ok
}

func (s *stubRunManager) GetSummary(id string) (*models.FlightSummary, bool) {
	sum, ok := s.summaries[id]
	return sum, ok
}

func (s *stubRunManager) GetRecords(id string, page, pageSize int) ([]models.FlightRecord, int, bool) {
	all, ok := s.records[id]
	if !ok {
		return nil, 0, false
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []models.FlightRecord{}, len(all), true
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), true
}

func (s *stubRunManager) GetRecordRange(id string, startTs, endTs time.Time) ([]models.FlightRecord, bool) {
	all, ok := s.records[id]
	if !ok {
		return nil, false
	}
	out := make([]models.FlightRecord, 0)
	for _, r := range all {
		if r.Timestamp == nil {
			continue
		}
		if !r.Timestamp.Before(startTs) && !r.Timestamp.After(endTs) {
			out = append(out, r)
		}
	}
	return out, true
}

// newTestContext builds an echo context with a JSON body
func newTestContext(t *testing.T, method, target string, body interface{}) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	e := echo.New()
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func wantAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != status {
		t.Errorf("status = %d, want %d", apiErr.Status, status)
	}
	if code != "" && apiErr.Code != code {
		t.Errorf("code = %q, want %q", apiErr.Code, code)
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
}
