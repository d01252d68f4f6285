package mmec_fab

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"mmec_fab/rrc"
)

// Defaults for a cell with a single ABB arm and a pneumatic gripper on a digital output.
const (
	DefaultURL       = "ws://localhost:9090"
	DefaultNamespace = "/rob1"

	DefaultGripperPin = "doUnitC1Out1"
	DefaultTool       = "tool0"
	DefaultWorkObject = "wobj0"

	DefaultAcceleration     = 100 // %
	DefaultAccelerationRamp = 100 // %
	DefaultSpeedOverride    = 100 // %
	DefaultTCPMaxSpeed      = 250 // mm/s

	DefaultSafeJointSpeed = 150 // mm/s
	DefaultSafeJointZone  = rrc.Z50

	DefaultConnectionTimeout = 10 * time.Second
)

// DefaultSafeJoints returns the home joint configuration in degrees. Each call returns a
// new slice.
func DefaultSafeJoints() []float64 {
	return []float64{0, 0, 0, 0, 0, 0}
}

// Config describes how to reach the controller and how to set it up before a run.
type Config struct {
	// Connection settings
	URL        string  `json:"url,omitempty"`         // rosbridge websocket (default: ws://localhost:9090)
	Namespace  string  `json:"namespace,omitempty"`   // RRC robot namespace (default: /rob1)
	TimeoutSec float64 `json:"timeout_sec,omitempty"` // Connection check timeout in seconds (default: 10)

	// Controller setup
	GripperPin       string  `json:"gripper_pin,omitempty"`
	Tool             string  `json:"tool,omitempty"`
	WorkObject       string  `json:"work_object,omitempty"`
	Acceleration     float64 `json:"acceleration,omitempty"`      // percent
	AccelerationRamp float64 `json:"acceleration_ramp,omitempty"` // percent
	SpeedOverride    float64 `json:"speed_override,omitempty"`    // percent
	TCPMaxSpeed      float64 `json:"tcp_max_speed,omitempty"`     // mm/s

	// Home position used by Pre and Post
	SafeJoints     []float64 `json:"safe_joints,omitempty"` // degrees, 6 values
	SafeJointSpeed float64   `json:"safe_joint_speed,omitempty"`
	SafeJointZone  *rrc.Zone `json:"safe_joint_zone,omitempty"`

	// Frames file used by the run_job command
	JobFile string `json:"job_file,omitempty"`
}

// Validate fills in defaults and ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid url %q: %w", cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, nil, fmt.Errorf("url must use ws:// or wss://, got %q", cfg.URL)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.TimeoutSec == 0 {
		cfg.TimeoutSec = DefaultConnectionTimeout.Seconds()
	}
	if cfg.TimeoutSec < 0 {
		return nil, nil, fmt.Errorf("timeout_sec must be positive, got %.1f", cfg.TimeoutSec)
	}

	if cfg.GripperPin == "" {
		cfg.GripperPin = DefaultGripperPin
	}
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	if cfg.WorkObject == "" {
		cfg.WorkObject = DefaultWorkObject
	}

	if cfg.Acceleration == 0 {
		cfg.Acceleration = DefaultAcceleration
	}
	if cfg.AccelerationRamp == 0 {
		cfg.AccelerationRamp = DefaultAccelerationRamp
	}
	if cfg.SpeedOverride == 0 {
		cfg.SpeedOverride = DefaultSpeedOverride
	}
	if cfg.TCPMaxSpeed == 0 {
		cfg.TCPMaxSpeed = DefaultTCPMaxSpeed
	}
	if cfg.SafeJointSpeed == 0 {
		cfg.SafeJointSpeed = DefaultSafeJointSpeed
	}
	if cfg.SafeJointZone == nil {
		zone := DefaultSafeJointZone
		cfg.SafeJointZone = &zone
	}

	// Validate ranges
	for _, p := range []struct {
		name  string
		value float64
		max   float64
	}{
		{"acceleration", cfg.Acceleration, 100},
		{"acceleration_ramp", cfg.AccelerationRamp, 100},
		{"speed_override", cfg.SpeedOverride, 100},
	} {
		if p.value < 0 || p.value > p.max {
			return nil, nil, fmt.Errorf("%s must be between 0 and %.0f percent, got %.1f", p.name, p.max, p.value)
		}
	}
	if cfg.TCPMaxSpeed < 0 {
		return nil, nil, fmt.Errorf("tcp_max_speed must be positive, got %.1f", cfg.TCPMaxSpeed)
	}
	if cfg.SafeJointSpeed < 0 {
		return nil, nil, fmt.Errorf("safe_joint_speed must be positive, got %.1f", cfg.SafeJointSpeed)
	}
	if len(cfg.SafeJoints) != 0 && len(cfg.SafeJoints) != 6 {
		return nil, nil, fmt.Errorf("expected 6 safe joint values, got %d", len(cfg.SafeJoints))
	}

	return nil, nil, nil
}

// timeout is the connection check timeout.
func (cfg *Config) timeout() time.Duration {
	return time.Duration(cfg.TimeoutSec * float64(time.Second))
}

// safeJoints returns a copy of the configured home position, or the default one.
func (cfg *Config) safeJoints() []float64 {
	if len(cfg.SafeJoints) == 0 {
		return DefaultSafeJoints()
	}
	return append([]float64(nil), cfg.SafeJoints...)
}

// controllerKey identifies the controller this config talks to.
func (cfg *Config) controllerKey() string {
	return cfg.URL + "#" + cfg.Namespace
}

// ResolveJobFile returns the job file path, interpreting relative paths against
// VIAM_MODULE_DATA when it is set.
func (cfg *Config) ResolveJobFile(name string) string {
	if name == "" {
		name = cfg.JobFile
	}
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	if moduleDataDir := os.Getenv("VIAM_MODULE_DATA"); moduleDataDir != "" {
		return filepath.Join(moduleDataDir, name)
	}
	return name
}
