package telemetry

import (
	"io"
	"math"

	"github.com/vineyard-analyzer/backend/internal/models"
)

// SummaryScanCap bounds the prefix scan used for compatibility checks.
// A hundred records is enough to establish a log's start time without
// paying for a full parse.
const SummaryScanCap = 100

// Summarize derives a time-range summary from the first SummaryScanCap
// records of a decoded log. The stream is consumed up to the cap.
func Summarize(s *RecordStream, logID, logName string) (*models.LogSummary, error) {
	summary := &models.LogSummary{LogID: logID, LogName: logName}

	for summary.Sampled < SummaryScanCap {
		rec, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		summary.Sampled++

		if rec.Timestamp == nil {
			continue
		}
		if summary.TimeRange == nil {
			summary.TimeRange = &models.TimeRange{Start: *rec.Timestamp, End: *rec.Timestamp}
			continue
		}
		if rec.Timestamp.Before(summary.TimeRange.Start) {
			summary.TimeRange.Start = *rec.Timestamp
		}
		if rec.Timestamp.After(summary.TimeRange.End) {
			summary.TimeRange.End = *rec.Timestamp
		}
	}

	return summary, nil
}

// SummarizeFile runs Summarize over a decoded log file.
func SummarizeFile(filePath, logID, logName string, aliases models.ColumnAliases) (*models.LogSummary, error) {
	s, err := OpenStream(filePath, aliases)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return Summarize(s, logID, logName)
}

// FlightSummary aggregates a fully parsed log: endpoints, height and
// speed extremes, satellite range, battery start/end.
func FlightSummary(parsed *models.ParsedFlightLog) *models.FlightSummary {
	fs := &models.FlightSummary{
		RecordCount: len(parsed.Records),
		TimeRange:   parsed.TimeRange,
	}
	if len(parsed.Records) == 0 {
		return fs
	}

	first := parsed.Records[0]
	last := parsed.Records[len(parsed.Records)-1]
	fs.StartLatitude = first.Latitude
	fs.StartLongitude = first.Longitude
	fs.EndLatitude = last.Latitude
	fs.EndLongitude = last.Longitude
	fs.BatteryStart = first.BatteryLevel
	fs.BatteryEnd = last.BatteryLevel

	fs.MinHeight = math.Inf(1)
	fs.MinSatellites = math.Inf(1)
	for i := range parsed.Records {
		r := &parsed.Records[i]
		fs.MaxHeight = math.Max(fs.MaxHeight, r.Height)
		fs.MinHeight = math.Min(fs.MinHeight, r.Height)
		fs.MaxSatellites = math.Max(fs.MaxSatellites, r.GPSNum)
		fs.MinSatellites = math.Min(fs.MinSatellites, r.GPSNum)
		hs := r.HSpeed
		if hs == 0 {
			hs = math.Abs(r.XSpeed) + math.Abs(r.YSpeed)
		}
		fs.MaxHSpeed = math.Max(fs.MaxHSpeed, hs)
	}
	return fs
}
