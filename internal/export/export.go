// Package export serializes annotation results for report generators
// and the editor collaborator.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// Header is the ordered annotation field list of the output schema.
var Header = []string{
	"image_name", "match_method", "timestamp",
	"latitude", "longitude", "altitude", "height", "gps_satellites",
	"pitch", "roll", "yaw",
	"gimbal_pitch", "gimbal_roll", "gimbal_yaw",
	"h_speed", "x_speed", "y_speed", "z_speed",
	"battery_level", "flight_mode",
}

// WriteCSV writes annotation records in the ordered output schema.
func WriteCSV(w io.Writer, records []models.AnnotationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i := range records {
		if err := cw.Write(row(&records[i])); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes annotation records as a JSON array.
func WriteJSON(w io.Writer, records []models.AnnotationRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteMsgpack writes annotation records msgpack-encoded, for clients
// that page through large result sets.
func WriteMsgpack(w io.Writer, records []models.AnnotationRecord) error {
	return msgpack.NewEncoder(w).Encode(records)
}

// row flattens one annotation into the ordered field list.
func row(rec *models.AnnotationRecord) []string {
	return []string{
		rec.ImageName,
		string(rec.Method),
		formatTimestamp(rec.Timestamp),
		formatFloat(rec.Latitude, 8),
		formatFloat(rec.Longitude, 8),
		formatFloat(rec.Altitude, 2),
		formatFloat(rec.Height, 2),
		formatFloat(rec.GPSNum, 0),
		formatFloat(rec.Pitch, 2),
		formatFloat(rec.Roll, 2),
		formatFloat(rec.Yaw, 2),
		formatFloat(rec.GimbalPitch, 2),
		formatFloat(rec.GimbalRoll, 2),
		formatFloat(rec.GimbalYaw, 2),
		formatFloat(rec.HSpeed, 2),
		formatFloat(rec.XSpeed, 2),
		formatFloat(rec.YSpeed, 2),
		formatFloat(rec.ZSpeed, 2),
		formatFloat(rec.BatteryLevel, 1),
		rec.FlightMode,
	}
}

func formatTimestamp(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format("2006-01-02 15:04:05.000")
}

func formatFloat(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// WriteRecordsCSV exports raw flight records, one row per record.
func WriteRecordsCSV(w io.Writer, records []models.FlightRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		"timestamp", "latitude", "longitude", "altitude", "height",
		"pitch", "roll", "yaw", "x_speed", "y_speed", "z_speed", "h_speed",
		"gimbal_pitch", "gimbal_roll", "gimbal_yaw",
		"battery_level", "gps_satellites", "flight_mode",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i := range records {
		r := &records[i]
		err := cw.Write([]string{
			formatTimestamp(r.Timestamp),
			formatFloat(r.Latitude, 8),
			formatFloat(r.Longitude, 8),
			formatFloat(r.Altitude, 2),
			formatFloat(r.Height, 2),
			formatFloat(r.Pitch, 2),
			formatFloat(r.Roll, 2),
			formatFloat(r.Yaw, 2),
			formatFloat(r.XSpeed, 2),
			formatFloat(r.YSpeed, 2),
			formatFloat(r.ZSpeed, 2),
			formatFloat(r.HSpeed, 2),
			formatFloat(r.GimbalPitch, 2),
			formatFloat(r.GimbalRoll, 2),
			formatFloat(r.GimbalYaw, 2),
			formatFloat(r.BatteryLevel, 1),
			formatFloat(r.GPSNum, 0),
			r.FlightMode,
		})
		if err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
