package models

import "time"

// MatchMethod describes how an image was paired with a flight record.
type MatchMethod string

const (
	MatchTimestamp  MatchMethod = "timestamp"
	MatchSequential MatchMethod = "sequential"
	MatchNone       MatchMethod = "none"
)

// MatchResult is the output of the nearest-timestamp engine.
// TimeDiffMs is set only for timestamp matches.
type MatchResult struct {
	Record     *FlightRecord `json:"record"`
	Method     MatchMethod   `json:"method"`
	TimeDiffMs *int64        `json:"timeDiffMs,omitempty"`
}

// AnnotationRecord is the per-image output of a batch annotation run.
// Values are rounded to fixed precision: 8 decimals for lat/lon,
// 1 for battery, 2 for everything else.
type AnnotationRecord struct {
	ImageName    string      `json:"imageName"`
	Method       MatchMethod `json:"method"`
	Timestamp    *time.Time  `json:"timestamp,omitempty"`
	Latitude     float64     `json:"latitude"`
	Longitude    float64     `json:"longitude"`
	Altitude     float64     `json:"altitude"`
	Height       float64     `json:"height"`
	GPSNum       float64     `json:"gpsNum"`
	Pitch        float64     `json:"pitch"`
	Roll         float64     `json:"roll"`
	Yaw          float64     `json:"yaw"`
	GimbalPitch  float64     `json:"gimbalPitch"`
	GimbalRoll   float64     `json:"gimbalRoll"`
	GimbalYaw    float64     `json:"gimbalYaw"`
	HSpeed       float64     `json:"hSpeed"`
	XSpeed       float64     `json:"xSpeed"`
	YSpeed       float64     `json:"ySpeed"`
	ZSpeed       float64     `json:"zSpeed"`
	BatteryLevel float64     `json:"batteryLevel"`
	FlightMode   string      `json:"flightMode"`
	Error        string      `json:"error,omitempty"`
}

// FlightSummary aggregates a full parsed log for display.
type FlightSummary struct {
	RecordCount    int        `json:"recordCount"`
	TimeRange      *TimeRange `json:"timeRange,omitempty"`
	StartLatitude  float64    `json:"startLatitude"`
	StartLongitude float64    `json:"startLongitude"`
	EndLatitude    float64    `json:"endLatitude"`
	EndLongitude   float64    `json:"endLongitude"`
	MaxHeight      float64    `json:"maxHeight"`
	MinHeight      float64    `json:"minHeight"`
	MaxHSpeed      float64    `json:"maxHSpeed"`
	MinSatellites  float64    `json:"minSatellites"`
	MaxSatellites  float64    `json:"maxSatellites"`
	BatteryStart   float64    `json:"batteryStart"`
	BatteryEnd     float64    `json:"batteryEnd"`
}
