// Package compat reports whether image capture times overlap log time
// ranges, without committing to a full annotation run.
package compat

import (
	"math"
	"time"

	"github.com/vineyard-analyzer/backend/internal/models"
)

// CloseMatchMinutes is the boundary distance still considered a near
// miss worth reporting.
const CloseMatchMinutes = 10.0

// ImageTimestamp pairs an image with its extracted capture time. A nil
// Timestamp means extraction failed; such images match nothing.
type ImageTimestamp struct {
	Name      string
	Timestamp *time.Time
}

// CheckOverlap classifies every (image, log) pair. An image inside a
// log's range is "inside_range" with diff 0; within CloseMatchMinutes
// of either boundary it is "close_match"; otherwise the pair is not
// recorded. Overall compatibility is true when any match exists.
func CheckOverlap(logs []models.LogSummary, images []ImageTimestamp) *models.CompatibilityReport {
	report := &models.CompatibilityReport{
		Matches:   make([]models.CompatMatch, 0),
		CheckedAt: time.Now().UTC(),
	}

	for _, img := range images {
		if img.Timestamp == nil {
			continue
		}
		for _, log := range logs {
			if log.TimeRange == nil {
				continue
			}
			class, diff, ok := classify(*img.Timestamp, log.TimeRange)
			if !ok {
				continue
			}
			report.Matches = append(report.Matches, models.CompatMatch{
				ImageName:   img.Name,
				LogID:       log.LogID,
				Class:       class,
				DiffMinutes: diff,
			})
		}
	}

	report.Compatible = len(report.Matches) > 0
	return report
}

func classify(ts time.Time, tr *models.TimeRange) (models.CompatClass, float64, bool) {
	if !ts.Before(tr.Start) && !ts.After(tr.End) {
		return models.CompatInsideRange, 0, true
	}

	toStart := math.Abs(ts.Sub(tr.Start).Minutes())
	toEnd := math.Abs(ts.Sub(tr.End).Minutes())
	diff := math.Min(toStart, toEnd)
	if diff < CloseMatchMinutes {
		return models.CompatCloseMatch, diff, true
	}
	return "", 0, false
}
