// Package match pairs image capture times with flight records.
package match

import (
	"time"

	"github.com/vineyard-analyzer/backend/internal/models"
)

// DefaultToleranceMs is the widest accepted gap between an image
// capture time and its flight record: 10 minutes.
const DefaultToleranceMs = 600_000

// FindMatch scans all timestamped records for the one closest to
// targetTime. Returns nil when no record lies within toleranceMs; the
// caller then applies the sequential fallback. Ties go to the first
// record in scan order.
func FindMatch(records []models.FlightRecord, targetTime time.Time, toleranceMs int64) *models.MatchResult {
	if toleranceMs <= 0 {
		toleranceMs = DefaultToleranceMs
	}

	bestIdx := -1
	var bestDiff int64
	for i := range records {
		ts := records[i].Timestamp
		if ts == nil {
			continue
		}
		diff := targetTime.Sub(*ts).Milliseconds()
		if diff < 0 {
			diff = -diff
		}
		if bestIdx < 0 || diff < bestDiff {
			bestIdx = i
			bestDiff = diff
		}
	}

	if bestIdx < 0 || bestDiff > toleranceMs {
		return nil
	}

	diff := bestDiff
	return &models.MatchResult{
		Record:     &records[bestIdx],
		Method:     models.MatchTimestamp,
		TimeDiffMs: &diff,
	}
}

// SequentialIndex maps an image's ordinal position within its batch
// proportionally onto the record sequence, clamped to the last valid
// index. This assumes images and records are roughly co-ordered in
// capture sequence; it is a documented approximation, not a guarantee.
func SequentialIndex(imageOrdinal, imageCount, recordCount int) int {
	if recordCount <= 0 {
		return -1
	}
	if imageCount <= 0 || imageOrdinal < 0 {
		return 0
	}
	idx := imageOrdinal * recordCount / imageCount
	if idx >= recordCount {
		idx = recordCount - 1
	}
	return idx
}

// Sequential returns the fallback match for an image with no usable
// timestamp match. Returns nil when the record set is empty.
func Sequential(records []models.FlightRecord, imageOrdinal, imageCount int) *models.MatchResult {
	idx := SequentialIndex(imageOrdinal, imageCount, len(records))
	if idx < 0 {
		return nil
	}
	return &models.MatchResult{
		Record: &records[idx],
		Method: models.MatchSequential,
	}
}
