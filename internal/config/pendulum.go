package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical pendulum defaults file.
const DefaultConfigPath = "config/pendulum.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// PendulumConfig holds the settings of the live tracker. Every field is
// optional; the Get* methods supply defaults for fields left out of the file,
// so partial configs are safe. Command-line flags override file values.
type PendulumConfig struct {
	// Camera
	CameraID    *int    `json:"camera_id,omitempty"`
	VideoPath   *string `json:"video_path,omitempty"`
	FrameWidth  *int    `json:"frame_width,omitempty"`
	FrameHeight *int    `json:"frame_height,omitempty"`

	// Colour window, OpenCV 8-bit HSV
	HueCenter     *int `json:"hue_center,omitempty"`
	SatCenter     *int `json:"sat_center,omitempty"`
	ValCenter     *int `json:"val_center,omitempty"`
	HueTolerance  *int `json:"hue_tolerance,omitempty"`
	SatTolerance  *int `json:"sat_tolerance,omitempty"`
	ValTolerance  *int `json:"val_tolerance,omitempty"`
	ErodeIters    *int `json:"erode_iterations,omitempty"`
	DilateIters   *int `json:"dilate_iterations,omitempty"`
	KernelSize    *int `json:"kernel_size,omitempty"`
	MinBlobAreaPx *int `json:"min_blob_area_px,omitempty"`

	// Angle and speed
	Alpha           *float64 `json:"alpha,omitempty"`
	Output          *string  `json:"output,omitempty"` // "angle" or "speed"
	Units           *string  `json:"units,omitempty"`
	CalibrationPath *string  `json:"calibration_path,omitempty"`
	Model           *string  `json:"model,omitempty"` // auto, single or double

	// Telemetry
	SerialPort   *string `json:"serial_port,omitempty"`
	BaudRate     *int    `json:"baud_rate,omitempty"`
	EmitTimeout  *string `json:"emit_timeout,omitempty"` // duration string like "500ms"
	Stdout       *bool   `json:"stdout,omitempty"`
	MQTTBroker   *string `json:"mqtt_broker,omitempty"`
	MQTTTopic    *string `json:"mqtt_topic,omitempty"`
	MQTTClientID *string `json:"mqtt_client_id,omitempty"`

	// Recording and debugging
	DBPath      *string `json:"db_path,omitempty"`
	DebugListen *string `json:"debug_listen,omitempty"`
}

// EmptyPendulumConfig returns a PendulumConfig with all fields set to nil.
func EmptyPendulumConfig() *PendulumConfig {
	return &PendulumConfig{}
}

// LoadPendulumConfig loads a PendulumConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadPendulumConfig(path string) (*PendulumConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPendulumConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PendulumConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadPendulumConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *PendulumConfig) Validate() error {
	for _, ch := range []struct {
		name string
		v    *int
		max  int
	}{
		{"hue_center", c.HueCenter, 179},
		{"sat_center", c.SatCenter, 255},
		{"val_center", c.ValCenter, 255},
	} {
		if ch.v != nil && (*ch.v < 0 || *ch.v > ch.max) {
			return fmt.Errorf("%s must be between 0 and %d, got %d", ch.name, ch.max, *ch.v)
		}
	}

	if c.Alpha != nil && (*c.Alpha <= 0 || *c.Alpha > 1) {
		return fmt.Errorf("alpha must be in (0, 1], got %f", *c.Alpha)
	}

	if c.KernelSize != nil && *c.KernelSize < 1 {
		return fmt.Errorf("kernel_size must be at least 1, got %d", *c.KernelSize)
	}

	if c.MinBlobAreaPx != nil && *c.MinBlobAreaPx < 0 {
		return fmt.Errorf("min_blob_area_px must be non-negative, got %d", *c.MinBlobAreaPx)
	}

	if c.Output != nil {
		switch *c.Output {
		case "angle", "speed":
		default:
			return fmt.Errorf("output must be angle or speed, got %q", *c.Output)
		}
	}

	if c.Model != nil {
		switch *c.Model {
		case "auto", "single", "double":
		default:
			return fmt.Errorf("model must be auto, single or double, got %q", *c.Model)
		}
	}

	if c.EmitTimeout != nil && *c.EmitTimeout != "" {
		if _, err := time.ParseDuration(*c.EmitTimeout); err != nil {
			return fmt.Errorf("invalid emit_timeout '%s': %w", *c.EmitTimeout, err)
		}
	}

	return nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func stringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// GetCameraID returns the camera_id value or the default.
func (c *PendulumConfig) GetCameraID() int { return intOr(c.CameraID, 0) }

// GetVideoPath returns the video_path value; empty means use the camera.
func (c *PendulumConfig) GetVideoPath() string { return stringOr(c.VideoPath, "") }

// GetFrameSize returns the requested capture size, 640x480 by default.
func (c *PendulumConfig) GetFrameSize() (int, int) {
	return intOr(c.FrameWidth, 640), intOr(c.FrameHeight, 480)
}

// GetHSVCenter returns the initial pin colour.
func (c *PendulumConfig) GetHSVCenter() (h, s, v int) {
	return intOr(c.HueCenter, 100), intOr(c.SatCenter, 104), intOr(c.ValCenter, 149)
}

// GetHSVTolerance returns the half-width of the colour window per channel.
func (c *PendulumConfig) GetHSVTolerance() (h, s, v int) {
	return intOr(c.HueTolerance, 20), intOr(c.SatTolerance, 60), intOr(c.ValTolerance, 60)
}

// GetMorphology returns the erode iterations, dilate iterations and kernel size.
func (c *PendulumConfig) GetMorphology() (erode, dilate, kernel int) {
	return intOr(c.ErodeIters, 1), intOr(c.DilateIters, 2), intOr(c.KernelSize, 3)
}

// GetMinBlobArea returns the min_blob_area_px value or the default.
func (c *PendulumConfig) GetMinBlobArea() float64 {
	return float64(intOr(c.MinBlobAreaPx, 50))
}

// GetAlpha returns the smoothing factor or the default.
func (c *PendulumConfig) GetAlpha() float64 {
	if c.Alpha == nil {
		return 0.2
	}
	return *c.Alpha
}

func (c *PendulumConfig) GetOutput() string { return stringOr(c.Output, "angle") }

func (c *PendulumConfig) GetUnits() string { return stringOr(c.Units, "mps") }

func (c *PendulumConfig) GetCalibrationPath() string {
	return stringOr(c.CalibrationPath, "pendulum_calibration.json")
}

func (c *PendulumConfig) GetModel() string { return stringOr(c.Model, "auto") }

// GetSerialPort returns the telemetry serial device; empty disables it.
func (c *PendulumConfig) GetSerialPort() string { return stringOr(c.SerialPort, "") }

func (c *PendulumConfig) GetBaudRate() int { return intOr(c.BaudRate, 115200) }

// GetEmitTimeout parses and returns the EmitTimeout as a time.Duration.
func (c *PendulumConfig) GetEmitTimeout() time.Duration {
	if c.EmitTimeout == nil || *c.EmitTimeout == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.EmitTimeout)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

func (c *PendulumConfig) GetStdout() bool {
	if c.Stdout == nil {
		return false
	}
	return *c.Stdout
}

// GetMQTT returns the broker, topic and client id. An empty broker disables
// the MQTT sink.
func (c *PendulumConfig) GetMQTT() (broker, topic, clientID string) {
	return stringOr(c.MQTTBroker, ""), stringOr(c.MQTTTopic, "wind/pendulum"), stringOr(c.MQTTClientID, "wind-pendulum")
}

// GetDBPath returns the sample database path; empty disables recording.
func (c *PendulumConfig) GetDBPath() string { return stringOr(c.DBPath, "") }

func (c *PendulumConfig) GetDebugListen() string { return stringOr(c.DebugListen, "localhost:8090") }
