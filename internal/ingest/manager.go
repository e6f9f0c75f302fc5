// Package ingest runs async log ingestion jobs: a raw flight log is
// hashed, decoded through the parse cache, and parsed into telemetry
// records ready for matching.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vineyard-analyzer/backend/internal/cache"
	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vineyard-analyzer/backend/internal/telemetry"
)

// Status represents the ingestion processing status.
type Status string

const (
	StatusHashing  Status = "hashing"
	StatusDecoding Status = "decoding"
	StatusParsing  Status = "parsing"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// Job represents an async log ingestion job.
type Job struct {
	ID            string            `json:"id"`
	FileID        string            `json:"fileId"`
	FileName      string            `json:"fileName"`
	Status        Status            `json:"status"`
	Progress      float64           `json:"progress"`
	Stage         string            `json:"stage"`
	StageProgress float64           `json:"stageProgress"`
	ContentHash   string            `json:"contentHash,omitempty"`
	CacheHit      bool              `json:"cacheHit"`
	RecordCount   int               `json:"recordCount"`
	TimeRange     *models.TimeRange `json:"timeRange,omitempty"`
	Error         string            `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
}

// Store defines the interface needed from the storage layer.
type Store interface {
	GetFilePath(id string) (string, error)
	GetFile(id string) (*models.FileInfo, error)
}

// Decoder turns a raw binary log into decoded CSV text at outputPath.
type Decoder interface {
	Decode(ctx context.Context, rawLogPath, outputPath string) error
}

// Manager handles async log ingestion.
type Manager struct {
	jobs    map[string]*Job
	parsed  map[string]*models.ParsedFlightLog // keyed by file ID
	decoded map[string]string                  // file ID -> decoded CSV path
	mu      sync.RWMutex

	store   Store
	cache   *cache.ParseCache
	decoder Decoder
	aliases models.ColumnAliases
}

// NewManager creates a new ingestion manager. decoder may be nil when
// no decoder binary is configured, in which case only already-decoded
// CSV logs can be ingested.
func NewManager(store Store, parseCache *cache.ParseCache, decoder Decoder, aliases models.ColumnAliases) *Manager {
	return &Manager{
		jobs:    make(map[string]*Job),
		parsed:  make(map[string]*models.ParsedFlightLog),
		decoded: make(map[string]string),
		store:   store,
		cache:   parseCache,
		decoder: decoder,
		aliases: aliases,
	}
}

// StartJob begins async ingestion of an uploaded log file.
func (m *Manager) StartJob(fileID, fileName string) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		FileID:    fileID,
		FileName:  fileName,
		Status:    StatusHashing,
		Stage:     "preparing",
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.processJob(job)

	// The worker mutates the stored job, so hand back a snapshot.
	snapshot := *job
	return &snapshot
}

// GetJob retrieves a snapshot of a job by ID. Jobs keep advancing on
// their worker goroutine, so callers get a copy rather than the live
// struct.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// GetParsed returns the parsed telemetry for an ingested log file.
func (m *Manager) GetParsed(fileID string) (*models.ParsedFlightLog, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	parsed, ok := m.parsed[fileID]
	return parsed, ok
}

// GetDecodedPath returns the decoded CSV path for an ingested log.
func (m *Manager) GetDecodedPath(fileID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path, ok := m.decoded[fileID]
	return path, ok
}

// DropParsed releases the parsed telemetry for a log file.
func (m *Manager) DropParsed(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parsed, fileID)
	delete(m.decoded, fileID)
}

// processJob handles the actual async processing.
func (m *Manager) processJob(job *Job) {
	fmt.Printf("[IngestJob %s] Starting ingestion: %s\n", job.ID[:8], job.FileName)

	rawPath, err := m.store.GetFilePath(job.FileID)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("locating uploaded file: %v", err))
		return
	}

	// Stage 1: Hash the raw log
	m.updateJobStatus(job, StatusHashing, "hashing raw log", 0)

	hash, err := cache.HashFile(rawPath)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("hashing raw log: %v", err))
		return
	}

	m.mu.Lock()
	job.ContentHash = hash
	m.mu.Unlock()
	m.updateJobStatus(job, StatusHashing, "hashing raw log", 100)
	fmt.Printf("[IngestJob %s] Content hash %s\n", job.ID[:8], hash[:8])

	// Stage 2: Decode, or pass through already-decoded CSV
	m.updateJobStatus(job, StatusDecoding, "decoding log", 0)

	csvPath := rawPath
	if m.needsDecode(job.FileName) {
		var hit bool
		csvPath, hit, err = m.cache.LookupOrDecode(rawPath, func(raw, out string) error {
			if m.decoder == nil {
				return fmt.Errorf("no decoder configured for raw log %s", job.FileName)
			}
			return m.decoder.Decode(context.Background(), raw, out)
		})
		if err != nil {
			m.markJobError(job, fmt.Sprintf("decoding log: %v", err))
			return
		}
		if hit {
			m.mu.Lock()
			job.CacheHit = true
			m.mu.Unlock()
		}
	} else {
		fmt.Printf("[IngestJob %s] Already decoded, skipping decoder\n", job.ID[:8])
	}

	m.updateJobStatus(job, StatusDecoding, "decoding log", 100)

	// Stage 3: Parse telemetry records
	m.updateJobStatus(job, StatusParsing, "parsing telemetry", 0)

	parsed, err := telemetry.ParseFile(csvPath, m.aliases, func(lines int, bytesProcessed, totalBytes int64) {
		if totalBytes <= 0 {
			return
		}
		m.updateJobStatus(job, StatusParsing, "parsing telemetry", float64(bytesProcessed)/float64(totalBytes)*100)
	})
	if err != nil {
		m.markJobError(job, fmt.Sprintf("parsing telemetry: %v", err))
		return
	}
	if len(parsed.Records) == 0 {
		m.markJobError(job, "no usable telemetry records in log")
		return
	}

	m.mu.Lock()
	m.parsed[job.FileID] = parsed
	m.decoded[job.FileID] = csvPath
	job.RecordCount = len(parsed.Records)
	job.TimeRange = parsed.TimeRange
	m.mu.Unlock()

	m.markJobReady(job)
	fmt.Printf("[IngestJob %s] Ingestion complete: %d records\n", job.ID[:8], len(parsed.Records))
}

// needsDecode reports whether the file must go through the decoder
// binary. Plain CSV exports are parsed directly.
func (m *Manager) needsDecode(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	return ext != ".csv"
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// Hashing: 0-10%, Decoding: 10-60%, Parsing: 60-100%
	switch status {
	case StatusHashing:
		job.Progress = stageProgress * 0.1
	case StatusDecoding:
		job.Progress = 10 + stageProgress*0.5
	case StatusParsing:
		job.Progress = 60 + stageProgress*0.4
	case StatusReady:
		job.Progress = 100
	}
}

// markJobReady marks job as ready (thread-safe).
func (m *Manager) markJobReady(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusReady
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

// markJobError marks job as failed (thread-safe).
func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	fmt.Printf("[IngestJob %s] Error: %s\n", job.ID[:8], errMsg)
}

// CleanupOldJobs removes finished jobs older than the specified duration.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusReady || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
			}
		}
	}
}
