// Package imagemeta derives capture times for photographs.
//
// Extraction is an explicit ordered strategy list: embedded EXIF
// metadata first, then a series of filename patterns. The first
// strategy producing a valid calendar time wins; when all fail the
// timestamp is simply unknown, which callers must not treat as an
// error.
package imagemeta

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Extractor is one timestamp-extraction strategy.
type Extractor func(filename string, r io.Reader) (time.Time, bool)

// filenamePatterns are tried in order against the base filename. Each
// pattern captures year, month, day, hour, minute, second.
var filenamePatterns = []*regexp.Regexp{
	// Compact: DJI_20240101_123000.jpg
	regexp.MustCompile(`(20\d{2})(\d{2})(\d{2})[_-](\d{2})(\d{2})(\d{2})`),
	// ISO-like, colon or dash/underscore separated time: 2024-01-01T12:30:00.jpg
	regexp.MustCompile(`(20\d{2})-(\d{2})-(\d{2})[T_ -](\d{2})[:\-_](\d{2})[:\-_](\d{2})`),
	// Underscore-delimited: 2024_01_01_12_30_00.jpg
	regexp.MustCompile(`(20\d{2})_(\d{2})_(\d{2})_(\d{2})_(\d{2})_(\d{2})`),
	// Anchored compact without separator: 20240101123000.jpg
	regexp.MustCompile(`^(20\d{2})(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})`),
}

// ExtractTimestamp derives a capture time for an image. The reader may
// be nil when only the filename is available. The boolean result is
// false when no strategy succeeded.
func ExtractTimestamp(filename string, r io.Reader) (time.Time, bool) {
	for _, extract := range []Extractor{FromEXIF, FromFilename} {
		if ts, ok := extract(filename, r); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ExtractFromFile opens the image at path and runs the strategy list.
func ExtractFromFile(path string) (time.Time, bool) {
	file, err := os.Open(path)
	if err != nil {
		// Fall back to the filename alone.
		return ExtractTimestamp(filepath.Base(path), nil)
	}
	defer file.Close()

	return ExtractTimestamp(filepath.Base(path), file)
}

// FromEXIF reads the embedded capture time. Authoritative when present.
func FromEXIF(_ string, r io.Reader) (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	x, err := exif.Decode(r)
	if err != nil {
		return time.Time{}, false
	}
	ts, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// FromFilename matches the ordered pattern list against the filename.
// The first pattern that both matches and parses into a valid calendar
// time wins.
func FromFilename(filename string, _ io.Reader) (time.Time, bool) {
	base := filepath.Base(filename)
	for _, pattern := range filenamePatterns {
		m := pattern.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		if ts, ok := calendarTime(m[1:7]); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// calendarTime builds a time from six digit groups, rejecting values
// that are not a real calendar time (time.Date would silently
// normalize them otherwise).
func calendarTime(groups []string) (time.Time, bool) {
	n := make([]int, 6)
	for i, g := range groups {
		v, err := strconv.Atoi(g)
		if err != nil {
			return time.Time{}, false
		}
		n[i] = v
	}
	year, month, day, hour, min, sec := n[0], n[1], n[2], n[3], n[4], n[5]
	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, false
	}

	ts := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
	// Catch day overflow (e.g. Feb 30 normalizing into March).
	if ts.Day() != day || ts.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return ts, true
}
