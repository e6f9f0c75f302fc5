package models

// SessionStatus represents the status of an annotation run.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusAnnotating SessionStatus = "annotating"
	SessionStatusComplete   SessionStatus = "complete"
	SessionStatusError      SessionStatus = "error"
)

// AnnotationSession tracks one batch annotation run over an ingested
// log and a set of uploaded images.
type AnnotationSession struct {
	ID               string        `json:"id"`
	LogID            string        `json:"logId"`
	ImageIDs         []string      `json:"imageIds"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	ImageCount       int           `json:"imageCount"`
	AnnotatedCount   int           `json:"annotatedCount,omitempty"`
	ErroredCount     int           `json:"erroredCount,omitempty"`
	RecordCount      int           `json:"recordCount,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        int64         `json:"startTime,omitempty"` // log range, Unix ms
	EndTime          int64         `json:"endTime,omitempty"`   // log range, Unix ms
	Errors           []RunError    `json:"errors,omitempty"`
}

// RunError describes a non-fatal error captured during a run.
type RunError struct {
	ImageName string `json:"imageName,omitempty"`
	Reason    string `json:"reason"`
}

// NewAnnotationSession creates a new AnnotationSession in pending status.
func NewAnnotationSession(id, logID string, imageIDs []string) *AnnotationSession {
	return &AnnotationSession{
		ID:         id,
		LogID:      logID,
		ImageIDs:   imageIDs,
		Status:     SessionStatusPending,
		Progress:   0,
		ImageCount: len(imageIDs),
		Errors:     make([]RunError, 0),
	}
}
