// Package session manages batch annotation runs: each run pairs one
// ingested flight log with a set of uploaded images and drives the
// matching and annotation over them.
package session

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vineyard-analyzer/backend/internal/batch"
	"github.com/vineyard-analyzer/backend/internal/imagemeta"
	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/telemetry"
)

// MaxSessions limits concurrent runs to prevent memory exhaustion
const MaxSessions = 10

// SessionMaxAge is how long to keep completed runs before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep runs that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// LogSource provides parsed telemetry for an ingested log.
type LogSource interface {
	GetParsed(fileID string) (*models.ParsedFlightLog, bool)
}

// ImageSource resolves uploaded image files.
type ImageSource interface {
	GetFile(id string) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
}

// RunOptions configures annotation runs. Zero values fall back to the
// batch package defaults.
type RunOptions struct {
	GroupSize   int
	ToleranceMs int64
	Compositor  batch.Compositor
}

// Manager handles active annotation runs.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	logs     LogSource
	images   ImageSource
	opts     RunOptions
	tempDir  string
}

// SessionState holds the run metadata, its results, and the
// DuckDB-backed record store used for paging.
type SessionState struct {
	Session      *models.AnnotationSession
	Results      []models.AnnotationRecord
	Summary      *models.FlightSummary
	FlightStore  *telemetry.FlightStore
	LastAccessed time.Time
	cancel       context.CancelFunc
}

// NewManager creates a new run manager.
// Uses environment variable DUCKDB_TEMP_DIR for temp directory, defaults to ./data/temp
func NewManager(logs LogSource, images ImageSource, opts RunOptions) *Manager {
	tempDir := os.Getenv("DUCKDB_TEMP_DIR")
	if tempDir == "" {
		tempDir = "./data/temp"
	}
	os.MkdirAll(tempDir, 0755)
	return NewManagerWithTempDir(logs, images, opts, tempDir)
}

// NewManagerWithTempDir creates a run manager with a specific temp directory.
func NewManagerWithTempDir(logs LogSource, images ImageSource, opts RunOptions, tempDir string) *Manager {
	return &Manager{
		sessions: make(map[string]*SessionState),
		logs:     logs,
		images:   images,
		opts:     opts,
		tempDir:  tempDir,
	}
}

// StartRun begins annotating the given images against an ingested log.
func (m *Manager) StartRun(logID string, imageIDs []string) (*models.AnnotationSession, error) {
	if len(imageIDs) == 0 {
		return nil, fmt.Errorf("no images selected")
	}
	if _, ok := m.logs.GetParsed(logID); !ok {
		return nil, fmt.Errorf("log %s is not ingested", logID)
	}

	// Clean up old runs if at limit
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()
	session := models.NewAnnotationSession(sessionID, logID, imageIDs)
	session.Status = models.SessionStatusAnnotating

	ctx, cancel := context.WithCancel(context.Background())
	state := &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
		cancel:       cancel,
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()

	go m.runAnnotation(ctx, sessionID, logID, imageIDs)

	// The worker mutates the stored session, so hand back a snapshot.
	snapshot := *session
	return &snapshot, nil
}

func (m *Manager) runAnnotation(ctx context.Context, sessionID, logID string, imageIDs []string) {
	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Run %s] PANIC recovered: %v\n", sessionID[:8], r)
			m.updateSessionError(sessionID, fmt.Sprintf("annotation run panicked: %v", r))
		}
	}()

	start := time.Now()
	fmt.Printf("[Run %s] Starting annotation of %d images against log %s\n", sessionID[:8], len(imageIDs), logID)

	parsed, ok := m.logs.GetParsed(logID)
	if !ok {
		m.updateSessionError(sessionID, fmt.Sprintf("log %s disappeared before run started", logID))
		return
	}

	// Stage 1: resolve image files
	images := make([]batch.Image, 0, len(imageIDs))
	for _, id := range imageIDs {
		info, err := m.images.GetFile(id)
		if err != nil {
			m.updateSessionError(sessionID, fmt.Sprintf("image %s not found: %v", id, err))
			return
		}
		path, err := m.images.GetFilePath(id)
		if err != nil {
			m.updateSessionError(sessionID, fmt.Sprintf("image %s has no file: %v", id, err))
			return
		}
		images = append(images, batch.Image{Name: info.Name, Path: path})
	}

	m.setProgress(sessionID, 5)

	// Stage 2: persist records for paging queries
	store, err := telemetry.NewFlightStore(m.tempDir, sessionID)
	if err != nil {
		fmt.Printf("[Run %s] WARNING: record store unavailable, paging disabled: %v\n", sessionID[:8], err)
	} else {
		for i := range parsed.Records {
			if err := store.AddRecord(&parsed.Records[i]); err != nil {
				fmt.Printf("[Run %s] WARNING: record store write failed: %v\n", sessionID[:8], err)
				store.Close()
				store = nil
				break
			}
		}
		if store != nil {
			if err := store.Finalize(); err != nil {
				fmt.Printf("[Run %s] WARNING: record store finalize failed: %v\n", sessionID[:8], err)
				store.Close()
				store = nil
			}
		}
	}

	m.setProgress(sessionID, 10)

	// Stage 3: annotate
	opts := batch.Options{
		GroupSize:   m.opts.GroupSize,
		ToleranceMs: m.opts.ToleranceMs,
		Compositor:  m.opts.Compositor,
		// Stored files are named by ID, so filename patterns must run
		// against the original upload name, not the disk path.
		ExtractTimestamp: func(img batch.Image) (time.Time, bool) {
			f, err := os.Open(img.Path)
			if err != nil {
				return imagemeta.ExtractTimestamp(img.Name, nil)
			}
			defer f.Close()
			return imagemeta.ExtractTimestamp(img.Name, f)
		},
		OnProgress: func(done, total int) {
			// Annotation spans 10-95%; finalization takes the rest.
			progress := 10 + float64(done)*85/float64(total)
			m.mu.Lock()
			if state, ok := m.sessions[sessionID]; ok {
				state.Session.Progress = progress
				state.Session.AnnotatedCount = done
			}
			m.mu.Unlock()

			if done%100 == 0 {
				var memStats runtime.MemStats
				runtime.ReadMemStats(&memStats)
				fmt.Printf("[Run %s] Progress: %d/%d images - Memory: %.1f MB\n",
					sessionID[:8], done, total, float64(memStats.Alloc)/1024/1024)
			}
		},
	}

	results, err := batch.AnnotateAll(ctx, images, parsed.Records, opts)
	if err != nil {
		if store != nil {
			store.Close()
		}
		fmt.Printf("[Run %s] ERROR: annotation failed: %v\n", sessionID[:8], err)
		m.updateSessionError(sessionID, fmt.Sprintf("annotation failed: %v", err))
		return
	}

	annotated, errored := 0, 0
	runErrors := make([]models.RunError, 0)
	for i := range results {
		if results[i].Error != "" {
			errored++
			runErrors = append(runErrors, models.RunError{
				ImageName: results[i].ImageName,
				Reason:    results[i].Error,
			})
			continue
		}
		if results[i].Method != models.MatchNone {
			annotated++
		}
	}

	elapsed := time.Since(start).Milliseconds()
	fmt.Printf("[Run %s] Annotation complete: %d annotated, %d errored, %dms\n",
		sessionID[:8], annotated, errored, elapsed)

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		if store != nil {
			store.Close()
		}
		return
	}

	state.Results = results
	state.Summary = telemetry.FlightSummary(parsed)
	state.FlightStore = store
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.AnnotatedCount = annotated
	state.Session.ErroredCount = errored
	state.Session.RecordCount = len(parsed.Records)
	state.Session.ProcessingTimeMs = elapsed
	state.Session.Errors = runErrors

	if parsed.TimeRange != nil {
		state.Session.StartTime = parsed.TimeRange.Start.UnixMilli()
		state.Session.EndTime = parsed.TimeRange.End.UnixMilli()
	}
}

func (m *Manager) setProgress(sessionID string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Progress = progress
	}
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.Errors = append(state.Session.Errors, models.RunError{
		Reason: reason,
	})
}

// CancelRun aborts an in-flight run.
func (m *Manager) CancelRun(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	if state.cancel != nil {
		state.cancel()
	}
	return true
}

// GetSession returns a snapshot of a run by ID. The run keeps being
// updated by its worker goroutine, so callers get a copy rather than
// the live struct.
func (m *Manager) GetSession(id string) (*models.AnnotationSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	snapshot := *state.Session
	snapshot.Errors = append([]models.RunError(nil), state.Session.Errors...)
	return &snapshot, true
}

// TouchSession updates the LastAccessed timestamp for a run so active
// clients keep it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// GetResults returns paginated annotation results for a completed run.
func (m *Manager) GetResults(id string, page, pageSize int) ([]models.AnnotationRecord, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Results == nil {
		return nil, 0, false
	}

	total := len(state.Results)
	start := (page - 1) * pageSize
	if start < 0 {
		start = 0
	}
	if start >= total {
		return []models.AnnotationRecord{}, total, true
	}

	end := start + pageSize
	if end > total {
		end = total
	}
	return state.Results[start:end], total, true
}

// GetAllResults returns the full result set for a completed run.
func (m *Manager) GetAllResults(id string) ([]models.AnnotationRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Results == nil {
		return nil, false
	}
	return state.Results, true
}

// GetSummary returns the flight summary for a completed run.
func (m *Manager) GetSummary(id string) (*models.FlightSummary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Summary == nil {
		return nil, false
	}
	return state.Summary, true
}

// GetRecords returns paginated flight records from the run's record
// store. Falls back to false when the store was unavailable.
func (m *Manager) GetRecords(id string, page, pageSize int) ([]models.FlightRecord, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.FlightStore == nil {
		return nil, 0, false
	}

	total := state.FlightStore.Len()
	start := (page - 1) * pageSize
	if start < 0 {
		start = 0
	}
	if start >= total {
		return []models.FlightRecord{}, total, true
	}

	end := start + pageSize
	if end > total {
		end = total
	}

	records, err := state.FlightStore.GetRecords(start, end)
	if err != nil {
		fmt.Printf("[Manager] GetRecords error: %v\n", err)
		return nil, 0, false
	}
	return records, total, true
}

// GetRecordRange returns flight records within a time window.
func (m *Manager) GetRecordRange(id string, startTs, endTs time.Time) ([]models.FlightRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.FlightStore == nil {
		return nil, false
	}

	records, err := state.FlightStore.GetRange(startTs, endTs)
	if err != nil {
		fmt.Printf("[Manager] GetRecordRange error: %v\n", err)
		return nil, false
	}
	return records, true
}

// cleanupOldSessionsIfNeeded removes oldest completed runs if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	var toDelete []string
	for id, state := range m.sessions {
		if state.Session.Status == models.SessionStatusComplete ||
			state.Session.Status == models.SessionStatusError {
			toDelete = append(toDelete, id)
		}
	}

	toFree := len(m.sessions) - MaxSessions + 1
	deleted := 0
	for _, id := range toDelete {
		if deleted >= toFree {
			break
		}
		if state, ok := m.sessions[id]; ok {
			if state.FlightStore != nil {
				state.FlightStore.Close()
			}
			delete(m.sessions, id)
			deleted++
			fmt.Printf("[Manager] Cleaned up old run %s to free memory\n", id[:8])
		}
	}
}

// CleanupOldSessions removes runs older than maxAge, but keeps runs
// that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	for id, state := range m.sessions {
		if state.Session.Status != models.SessionStatusComplete &&
			state.Session.Status != models.SessionStatusError {
			continue
		}

		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}

		sessionTime := state.LastAccessed
		if sessionTime.IsZero() {
			sessionTime = time.Now().Add(-maxAge - time.Hour)
		}

		if sessionTime.Before(cutoff) {
			if state.FlightStore != nil {
				state.FlightStore.Close()
			}
			delete(m.sessions, id)
			fmt.Printf("[Manager] Cleaned up aged run %s (last accessed: %s ago)\n",
				id[:8], time.Since(state.LastAccessed).Round(time.Second))
		}
	}
}
