package models

import "time"

// FileKind distinguishes uploaded flight logs from photographs.
type FileKind string

const (
	FileKindLog   FileKind = "log"
	FileKindImage FileKind = "image"
)

// FileInfo represents metadata about an uploaded file.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       FileKind  `json:"kind"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"` // "uploaded", "decoding", "ready", "error"
}
