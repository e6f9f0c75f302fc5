package models

import "time"

// LogSummary is a lightweight time-range summary of one log, derived
// from a capped prefix scan of its decoded output.
type LogSummary struct {
	LogID     string     `json:"logId"`
	LogName   string     `json:"logName"`
	TimeRange *TimeRange `json:"timeRange,omitempty"`
	Sampled   int        `json:"sampled"`
}

// CompatClass classifies one (image, log) pair.
type CompatClass string

const (
	CompatInsideRange CompatClass = "inside_range"
	CompatCloseMatch  CompatClass = "close_match"
)

// CompatMatch records one image/log pair whose times overlap or nearly
// overlap.
type CompatMatch struct {
	ImageName   string      `json:"imageName"`
	LogID       string      `json:"logId"`
	Class       CompatClass `json:"class"`
	DiffMinutes float64     `json:"diffMinutes"`
}

// CompatibilityReport is the result of an overlap check across all
// (image, log) pairs.
type CompatibilityReport struct {
	Compatible bool          `json:"compatible"`
	Matches    []CompatMatch `json:"matches"`
	CheckedAt  time.Time     `json:"checkedAt"`
}
