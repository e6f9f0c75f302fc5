package imagemeta

import (
	"strings"
	"testing"
	"time"
)

func wantTime(t *testing.T, got time.Time, ok bool, want time.Time) {
	t.Helper()
	if !ok {
		t.Fatal("Expected a timestamp")
	}
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestFromFilenameCompact(t *testing.T) {
	got, ok := FromFilename("DJI_20240101_123000.jpg", nil)
	wantTime(t, got, ok, time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC))
}

func TestFromFilenameISO(t *testing.T) {
	got, ok := FromFilename("capture_2024-03-15T09:05:30.jpg", nil)
	wantTime(t, got, ok, time.Date(2024, 3, 15, 9, 5, 30, 0, time.UTC))

	got, ok = FromFilename("shot 2024-03-15 09-05-30.png", nil)
	wantTime(t, got, ok, time.Date(2024, 3, 15, 9, 5, 30, 0, time.UTC))
}

func TestFromFilenameUnderscore(t *testing.T) {
	got, ok := FromFilename("photo_2024_06_30_23_59_59_final.jpeg", nil)
	wantTime(t, got, ok, time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC))
}

func TestFromFilenameAnchoredCompact(t *testing.T) {
	got, ok := FromFilename("20240101123000.jpg", nil)
	wantTime(t, got, ok, time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC))
}

func TestFromFilenameRejectsInvalidCalendar(t *testing.T) {
	// Matches the compact pattern but Feb 30 is not a real date.
	if _, ok := FromFilename("DJI_20240230_120000.jpg", nil); ok {
		t.Error("Expected rejection of Feb 30")
	}
	// Hour 25 is invalid.
	if _, ok := FromFilename("DJI_20240101_250000.jpg", nil); ok {
		t.Error("Expected rejection of hour 25")
	}
}

func TestFromFilenameNoMatch(t *testing.T) {
	if _, ok := FromFilename("IMG_0042.jpg", nil); ok {
		t.Error("Expected no timestamp")
	}
}

func TestExtractTimestampFallsBackToFilename(t *testing.T) {
	// Not a JPEG, so the EXIF strategy fails and the filename pattern
	// takes over.
	got, ok := ExtractTimestamp("DJI_20240101_123000.jpg", strings.NewReader("not an image"))
	wantTime(t, got, ok, time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC))
}

func TestExtractTimestampUnknown(t *testing.T) {
	if _, ok := ExtractTimestamp("vacation.jpg", nil); ok {
		t.Error("Expected unknown timestamp")
	}
}
