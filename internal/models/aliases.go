package models

// ColumnAliases maps semantic field names to ordered lists of header
// aliases. Decoder versions disagree on header naming (`OSD.latitude`
// vs `latitude`), so each field carries its candidates in priority
// order. Loaded from a YAML override file when present.
type ColumnAliases struct {
	Timestamp    []string `json:"timestamp" yaml:"timestamp"`
	Latitude     []string `json:"latitude" yaml:"latitude"`
	Longitude    []string `json:"longitude" yaml:"longitude"`
	Altitude     []string `json:"altitude" yaml:"altitude"`
	Height       []string `json:"height" yaml:"height"`
	Pitch        []string `json:"pitch" yaml:"pitch"`
	Roll         []string `json:"roll" yaml:"roll"`
	Yaw          []string `json:"yaw" yaml:"yaw"`
	XSpeed       []string `json:"xSpeed" yaml:"x_speed"`
	YSpeed       []string `json:"ySpeed" yaml:"y_speed"`
	ZSpeed       []string `json:"zSpeed" yaml:"z_speed"`
	HSpeed       []string `json:"hSpeed" yaml:"h_speed"`
	GimbalPitch  []string `json:"gimbalPitch" yaml:"gimbal_pitch"`
	GimbalRoll   []string `json:"gimbalRoll" yaml:"gimbal_roll"`
	GimbalYaw    []string `json:"gimbalYaw" yaml:"gimbal_yaw"`
	BatteryLevel []string `json:"batteryLevel" yaml:"battery_level"`
	GPSNum       []string `json:"gpsNum" yaml:"gps_num"`
	FlightMode   []string `json:"flightMode" yaml:"flight_mode"`
}
