// Package models contains domain types for the flight log annotator.
package models

import (
	"math"
	"time"
)

// CellKind tags the variant of a parsed telemetry cell.
type CellKind int

const (
	CellText CellKind = iota
	CellNumber
)

// CellValue is one decoded CSV cell: either a number or raw text.
// Decoder output has no schema, so cells carry their own tag and
// callers coerce with an explicit default.
type CellValue struct {
	Kind CellKind
	Num  float64
	Text string
}

// NumberCell wraps a float in a CellValue.
func NumberCell(v float64) CellValue {
	return CellValue{Kind: CellNumber, Num: v}
}

// TextCell wraps a string in a CellValue.
func TextCell(s string) CellValue {
	return CellValue{Kind: CellText, Text: s}
}

// Float returns the numeric value, or def for text cells.
func (c CellValue) Float(def float64) float64 {
	if c.Kind == CellNumber {
		return c.Num
	}
	return def
}

// String returns the text value, or def for empty text cells.
// Numeric cells fall back to def as well; callers that want the raw
// column text should read it before coercion.
func (c CellValue) String(def string) string {
	if c.Kind == CellText && c.Text != "" {
		return c.Text
	}
	return def
}

// FlightRecord is one telemetry sample from a decoded flight log.
// Records are immutable once emitted by the parser.
type FlightRecord struct {
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	Altitude     float64    `json:"altitude"`
	Height       float64    `json:"height"`
	Pitch        float64    `json:"pitch"`
	Roll         float64    `json:"roll"`
	Yaw          float64    `json:"yaw"`
	XSpeed       float64    `json:"xSpeed"`
	YSpeed       float64    `json:"ySpeed"`
	ZSpeed       float64    `json:"zSpeed"`
	HSpeed       float64    `json:"hSpeed"`
	GimbalPitch  float64    `json:"gimbalPitch"`
	GimbalRoll   float64    `json:"gimbalRoll"`
	GimbalYaw    float64    `json:"gimbalYaw"`
	BatteryLevel float64    `json:"batteryLevel"`
	GPSNum       float64    `json:"gpsNum"`
	FlightMode   string     `json:"flightMode"`
}

// originEpsilon is the guard radius around (0,0) in degrees. DJI logs
// report the origin while the GPS has no fix.
const originEpsilon = 0.001

// HasValidPosition reports whether lat/lon are finite, in range, and
// not the degenerate near-origin "no fix" coordinate.
func HasValidPosition(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	if math.Abs(lat) < originEpsilon && math.Abs(lon) < originEpsilon {
		return false
	}
	return true
}

// TimeRange represents a time window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParsedFlightLog is the result of fully parsing one decoded log.
type ParsedFlightLog struct {
	Records   []FlightRecord `json:"records"`
	Header    []string       `json:"header"`
	TimeRange *TimeRange     `json:"timeRange,omitempty"`
}

// NewParsedFlightLog creates a new empty ParsedFlightLog.
func NewParsedFlightLog() *ParsedFlightLog {
	return &ParsedFlightLog{
		Records: make([]FlightRecord, 0),
	}
}
