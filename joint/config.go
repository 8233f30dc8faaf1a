package joint

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Direction is the homing travel direction of a joint.
type Direction int

const (
	// Negative seeks the limit switch at the low end of the range.
	Negative Direction = iota
	// Positive seeks the limit switch at the high end of the range.
	Positive
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Positive {
		return "positive"
	}
	return "negative"
}

// Sign returns -1 or +1.
func (d Direction) Sign() float64 {
	if d == Positive {
		return 1
	}
	return -1
}

// MarshalJSON encodes the direction as "positive" or "negative".
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "positive" or "negative".
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "positive":
		*d = Positive
	case "negative":
		*d = Negative
	default:
		return fmt.Errorf("%w: homing_direction %q", ErrMisconfigured, s)
	}
	return nil
}

// ErrMisconfigured reports an invalid joint configuration. It is detected
// at construction, before any wire traffic.
var ErrMisconfigured = errors.New("joint: misconfigured")

// Config is the immutable static description of one joint.
type Config struct {
	// Name is the axis label, J1 through J6.
	Name string `json:"name"`

	// Device is the AccelStepper device index on the microcontroller.
	Device int `json:"device"`

	StepPin       int `json:"step_pin"`
	DirPin        int `json:"dir_pin"`
	HomeSwitchPin int `json:"home_switch_pin"`

	// StepsPerRev is the number of motor steps per full joint revolution,
	// gearing included.
	StepsPerRev int `json:"steps_per_rev"`

	// MaxSpeed and MaxAccel are the operating limits in deg/s and deg/s^2.
	MaxSpeed float64 `json:"max_speed"`
	MaxAccel float64 `json:"max_accel"`

	// HomingSpeed is the constant seek speed in deg/s.
	HomingSpeed float64 `json:"homing_speed"`

	// HomingDirection is the side of the range the switch sits on.
	HomingDirection Direction `json:"homing_direction"`

	// MinAngle and MaxAngle bound the joint in degrees.
	MinAngle float64 `json:"min_angle"`
	MaxAngle float64 `json:"max_angle"`

	// ReadyPosition is the post-homing park angle in degrees.
	ReadyPosition float64 `json:"ready_position"`

	// CalibrationOffset corrects the switch trip point, in degrees.
	CalibrationOffset float64 `json:"calibration_offset"`
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrMisconfigured, c.Name, fmt.Sprintf(format, args...))
	}
	if c.Name == "" {
		return fmt.Errorf("%w: joint has no name", ErrMisconfigured)
	}
	if c.Device < 0 || c.Device > 5 {
		return fail("device index %d outside 0..5", c.Device)
	}
	if c.StepsPerRev <= 0 {
		return fail("steps_per_rev %d must be positive", c.StepsPerRev)
	}
	if c.MaxSpeed <= 0 {
		return fail("max_speed %.3f must be positive", c.MaxSpeed)
	}
	if c.MaxAccel < 0 {
		return fail("max_accel %.3f must not be negative", c.MaxAccel)
	}
	if c.HomingSpeed <= 0 || c.HomingSpeed > c.MaxSpeed {
		return fail("homing_speed %.3f must be in (0, max_speed]", c.HomingSpeed)
	}
	if c.MinAngle >= c.MaxAngle {
		return fail("range [%.3f, %.3f] is empty", c.MinAngle, c.MaxAngle)
	}
	if c.ReadyPosition < c.MinAngle || c.ReadyPosition > c.MaxAngle {
		return fail("ready_position %.3f outside range [%.3f, %.3f]", c.ReadyPosition, c.MinAngle, c.MaxAngle)
	}
	return nil
}

// InRange reports whether the angle lies inside the joint range.
func (c Config) InRange(deg float64) bool {
	return deg >= c.MinAngle && deg <= c.MaxAngle
}

// StepsPerDegree returns the conversion factor for this joint.
func (c Config) StepsPerDegree() float64 {
	return float64(c.StepsPerRev) / 360.0
}
