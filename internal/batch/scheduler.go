// Package batch drives concurrency-bounded annotation of many images
// against one flight record set.
package batch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vineyard-analyzer/backend/internal/imagemeta"
	"github.com/vineyard-analyzer/backend/internal/match"
	"github.com/vineyard-analyzer/backend/internal/metrics"
	"github.com/vineyard-analyzer/backend/internal/models"
)

// DefaultGroupSize is how many images are processed concurrently.
// Each group completes fully before the next starts; the point is
// bounded concurrency, not maximal throughput.
const DefaultGroupSize = 5

// Image is one photograph queued for annotation.
type Image struct {
	Name string
	Path string
}

// Compositor burns an annotation onto an image, returning the path of
// the annotated copy. Its rendering is an external collaborator.
type Compositor interface {
	Compose(imagePath string, rec models.AnnotationRecord) (string, error)
}

// Options configures a batch run. Zero values fall back to defaults.
type Options struct {
	GroupSize   int
	ToleranceMs int64
	Compositor  Compositor
	// ExtractTimestamp overrides capture-time extraction, mainly for
	// tests. Defaults to imagemeta.ExtractFromFile.
	ExtractTimestamp func(img Image) (time.Time, bool)
	OnProgress       func(done, total int)
}

// AnnotateAll annotates every image against the record set, preserving
// input order in the output. A failure on one image is captured in
// that image's record; it never aborts the run.
func AnnotateAll(ctx context.Context, images []Image, records []models.FlightRecord, opts Options) ([]models.AnnotationRecord, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if opts.GroupSize <= 0 {
		opts.GroupSize = DefaultGroupSize
	}
	if opts.ToleranceMs <= 0 {
		opts.ToleranceMs = match.DefaultToleranceMs
	}
	if opts.ExtractTimestamp == nil {
		opts.ExtractTimestamp = func(img Image) (time.Time, bool) {
			return imagemeta.ExtractFromFile(img.Path)
		}
	}

	results := make([]models.AnnotationRecord, len(images))

	for groupStart := 0; groupStart < len(images); groupStart += opts.GroupSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		groupEnd := groupStart + opts.GroupSize
		if groupEnd > len(images) {
			groupEnd = len(images)
		}

		var wg sync.WaitGroup
		for i := groupStart; i < groupEnd; i++ {
			wg.Add(1)
			go func(ordinal int) {
				defer wg.Done()
				results[ordinal] = annotateOne(images[ordinal], ordinal, len(images), records, opts)
			}(i)
		}
		wg.Wait()

		if opts.OnProgress != nil {
			opts.OnProgress(groupEnd, len(images))
		}
	}

	return results, nil
}

// annotateOne processes a single image. Panics and errors are captured
// into the record's Error field.
func annotateOne(img Image, ordinal, imageCount int, records []models.FlightRecord, opts Options) (out models.AnnotationRecord) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Batch] PANIC annotating %s: %v\n", img.Name, r)
			out = errorAnnotation(img.Name, fmt.Sprintf("annotation panicked: %v", r))
		}
		if out.Error != "" {
			metrics.ImagesAnnotatedTotal.WithLabelValues("error").Inc()
		} else {
			metrics.ImagesAnnotatedTotal.WithLabelValues(string(out.Method)).Inc()
		}
	}()

	var result *models.MatchResult
	captureTime, hasTime := opts.ExtractTimestamp(img)
	if hasTime {
		result = match.FindMatch(records, captureTime, opts.ToleranceMs)
	}
	if result == nil && len(records) > 0 {
		result = match.Sequential(records, ordinal, imageCount)
	}

	rec := buildAnnotation(img.Name, result)
	if hasTime && rec.Timestamp == nil {
		rec.Timestamp = &captureTime
	}

	if opts.Compositor != nil {
		if _, err := opts.Compositor.Compose(img.Path, rec); err != nil {
			rec.Error = fmt.Sprintf("compositing failed: %v", err)
		}
	}
	return rec
}

// buildAnnotation snapshots the matched record into an annotation,
// rounded to fixed precision. A nil result yields the all-default
// annotation with method "none".
func buildAnnotation(imageName string, result *models.MatchResult) models.AnnotationRecord {
	rec := models.AnnotationRecord{
		ImageName:  imageName,
		Method:     models.MatchNone,
		FlightMode: "Unknown",
	}
	if result == nil || result.Record == nil {
		return rec
	}

	fr := result.Record
	rec.Method = result.Method
	rec.Timestamp = fr.Timestamp
	rec.Latitude = round(fr.Latitude, 8)
	rec.Longitude = round(fr.Longitude, 8)
	rec.Altitude = round(fr.Altitude, 2)
	rec.Height = round(fr.Height, 2)
	rec.GPSNum = round(fr.GPSNum, 2)
	rec.Pitch = round(fr.Pitch, 2)
	rec.Roll = round(fr.Roll, 2)
	rec.Yaw = round(fr.Yaw, 2)
	rec.GimbalPitch = round(fr.GimbalPitch, 2)
	rec.GimbalRoll = round(fr.GimbalRoll, 2)
	rec.GimbalYaw = round(fr.GimbalYaw, 2)
	rec.HSpeed = round(fr.HSpeed, 2)
	rec.XSpeed = round(fr.XSpeed, 2)
	rec.YSpeed = round(fr.YSpeed, 2)
	rec.ZSpeed = round(fr.ZSpeed, 2)
	rec.BatteryLevel = round(fr.BatteryLevel, 1)
	if fr.FlightMode != "" {
		rec.FlightMode = fr.FlightMode
	}
	return rec
}

func errorAnnotation(imageName, reason string) models.AnnotationRecord {
	rec := buildAnnotation(imageName, nil)
	rec.Error = reason
	return rec
}

func round(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}
