package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vineyard-analyzer/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// Resolve maps a semantic field to a header position. Aliases are
// tried in priority order; for each alias an exact case-insensitive
// match wins over a substring match. Returns -1 when nothing matches.
func Resolve(header []string, aliases []string) int {
	for _, alias := range aliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if a == "" {
			continue
		}
		sub := -1
		for i, col := range header {
			c := strings.ToLower(strings.TrimSpace(col))
			if c == a {
				return i
			}
			if sub < 0 && strings.Contains(c, a) {
				sub = i
			}
		}
		if sub >= 0 {
			return sub
		}
	}
	return -1
}

// DefaultAliases returns the built-in alias table covering the
// dotted-prefix headers emitted by known decoder versions as well as
// their bare forms.
func DefaultAliases() models.ColumnAliases {
	return models.ColumnAliases{
		Timestamp:    []string{"CUSTOM.updateTime", "OSD.flyTime", "updateTime", "datetime", "timestamp", "time"},
		Latitude:     []string{"OSD.latitude", "latitude", "lat"},
		Longitude:    []string{"OSD.longitude", "longitude", "lon", "lng"},
		Altitude:     []string{"OSD.altitude", "altitude", "alt"},
		Height:       []string{"OSD.height", "height_m", "height"},
		Pitch:        []string{"OSD.pitch", "pitch_deg", "pitch"},
		Roll:         []string{"OSD.roll", "roll_deg", "roll"},
		Yaw:          []string{"OSD.yaw", "yaw_deg", "yaw"},
		XSpeed:       []string{"OSD.xSpeed", "x_speed_ms", "xSpeed"},
		YSpeed:       []string{"OSD.ySpeed", "y_speed_ms", "ySpeed"},
		ZSpeed:       []string{"OSD.zSpeed", "z_speed_ms", "zSpeed"},
		HSpeed:       []string{"OSD.hSpeed", "h_speed_ms", "hSpeed", "speed"},
		GimbalPitch:  []string{"GIMBAL.pitch", "gimbal_pitch", "gimbalPitch"},
		GimbalRoll:   []string{"GIMBAL.roll", "gimbal_roll", "gimbalRoll"},
		GimbalYaw:    []string{"GIMBAL.yaw", "gimbal_yaw", "gimbalYaw"},
		BatteryLevel: []string{"BATTERY.chargeLevel", "BATTERY.level", "battery_percent", "battery"},
		GPSNum:       []string{"OSD.gpsNum", "gps_satellites", "gpsNum", "satellites"},
		FlightMode:   []string{"OSD.flycState", "flight_mode", "flycState", "mode"},
	}
}

// LoadAliases reads a YAML alias override file. Fields left empty in
// the file keep their built-in defaults.
func LoadAliases(filePath string) (models.ColumnAliases, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return models.ColumnAliases{}, err
	}
	defer file.Close()

	return LoadAliasesFromReader(file)
}

// LoadAliasesFromReader parses alias overrides from an io.Reader and
// merges them over the defaults.
func LoadAliasesFromReader(r io.Reader) (models.ColumnAliases, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.ColumnAliases{}, err
	}

	var overrides models.ColumnAliases
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return models.ColumnAliases{}, fmt.Errorf("parsing alias file: %w", err)
	}

	return mergeAliases(DefaultAliases(), overrides), nil
}

func mergeAliases(base, over models.ColumnAliases) models.ColumnAliases {
	pick := func(b, o []string) []string {
		if len(o) > 0 {
			return o
		}
		return b
	}
	return models.ColumnAliases{
		Timestamp:    pick(base.Timestamp, over.Timestamp),
		Latitude:     pick(base.Latitude, over.Latitude),
		Longitude:    pick(base.Longitude, over.Longitude),
		Altitude:     pick(base.Altitude, over.Altitude),
		Height:       pick(base.Height, over.Height),
		Pitch:        pick(base.Pitch, over.Pitch),
		Roll:         pick(base.Roll, over.Roll),
		Yaw:          pick(base.Yaw, over.Yaw),
		XSpeed:       pick(base.XSpeed, over.XSpeed),
		YSpeed:       pick(base.YSpeed, over.YSpeed),
		ZSpeed:       pick(base.ZSpeed, over.ZSpeed),
		HSpeed:       pick(base.HSpeed, over.HSpeed),
		GimbalPitch:  pick(base.GimbalPitch, over.GimbalPitch),
		GimbalRoll:   pick(base.GimbalRoll, over.GimbalRoll),
		GimbalYaw:    pick(base.GimbalYaw, over.GimbalYaw),
		BatteryLevel: pick(base.BatteryLevel, over.BatteryLevel),
		GPSNum:       pick(base.GPSNum, over.GPSNum),
		FlightMode:   pick(base.FlightMode, over.FlightMode),
	}
}

// ColumnIndexMap resolves the semantic field set to header positions
// for one log. Computed once per parse, read-only afterwards. A -1
// index means the column is absent from this decoder version.
type ColumnIndexMap struct {
	Timestamp    int
	Latitude     int
	Longitude    int
	Altitude     int
	Height       int
	Pitch        int
	Roll         int
	Yaw          int
	XSpeed       int
	YSpeed       int
	ZSpeed       int
	HSpeed       int
	GimbalPitch  int
	GimbalRoll   int
	GimbalYaw    int
	BatteryLevel int
	GPSNum       int
	FlightMode   int
}

// ResolveColumns computes the index map for a header line.
func ResolveColumns(header []string, aliases models.ColumnAliases) ColumnIndexMap {
	return ColumnIndexMap{
		Timestamp:    Resolve(header, aliases.Timestamp),
		Latitude:     Resolve(header, aliases.Latitude),
		Longitude:    Resolve(header, aliases.Longitude),
		Altitude:     Resolve(header, aliases.Altitude),
		Height:       Resolve(header, aliases.Height),
		Pitch:        Resolve(header, aliases.Pitch),
		Roll:         Resolve(header, aliases.Roll),
		Yaw:          Resolve(header, aliases.Yaw),
		XSpeed:       Resolve(header, aliases.XSpeed),
		YSpeed:       Resolve(header, aliases.YSpeed),
		ZSpeed:       Resolve(header, aliases.ZSpeed),
		HSpeed:       Resolve(header, aliases.HSpeed),
		GimbalPitch:  Resolve(header, aliases.GimbalPitch),
		GimbalRoll:   Resolve(header, aliases.GimbalRoll),
		GimbalYaw:    Resolve(header, aliases.GimbalYaw),
		BatteryLevel: Resolve(header, aliases.BatteryLevel),
		GPSNum:       Resolve(header, aliases.GPSNum),
		FlightMode:   Resolve(header, aliases.FlightMode),
	}
}
