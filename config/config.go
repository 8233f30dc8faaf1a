// Package config holds the static description of the XD6 arm: the per-joint
// table and the Denavit-Hartenberg geometry. Values can also be loaded from
// JSON, with fields absent from a joint object falling back to the defaults.
package config

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/xiaohai-huang/XD6/joint"
	"github.com/xiaohai-huang/XD6/kinematics"
)

// Arm is the full static configuration.
type Arm struct {
	Joints [6]joint.Config `json:"joints"`
}

// Default returns the stock XD6 table: six joints on AccelStepper devices
// 0-5, limit switches on the Mega's analog-header pins, ready pose
// [0, 0, 0, 0, 90, 0].
func Default() Arm {
	return Arm{
		Joints: [6]joint.Config{
			{
				Name: "J1", Device: 0, StepPin: 22, DirPin: 23, HomeSwitchPin: 14,
				StepsPerRev: 16000, MaxSpeed: 40, MaxAccel: 80, HomingSpeed: 12,
				HomingDirection: joint.Negative, MinAngle: -170, MaxAngle: 170,
				ReadyPosition: 0, CalibrationOffset: 1.2,
			},
			{
				Name: "J2", Device: 1, StepPin: 24, DirPin: 25, HomeSwitchPin: 15,
				StepsPerRev: 20000, MaxSpeed: 30, MaxAccel: 60, HomingSpeed: 8,
				HomingDirection: joint.Negative, MinAngle: -90, MaxAngle: 90,
				ReadyPosition: 0, CalibrationOffset: -0.8,
			},
			{
				Name: "J3", Device: 2, StepPin: 26, DirPin: 27, HomeSwitchPin: 16,
				StepsPerRev: 20000, MaxSpeed: 35, MaxAccel: 70, HomingSpeed: 8,
				HomingDirection: joint.Positive, MinAngle: -120, MaxAngle: 120,
				ReadyPosition: 0, CalibrationOffset: 0.5,
			},
			{
				Name: "J4", Device: 3, StepPin: 28, DirPin: 29, HomeSwitchPin: 17,
				StepsPerRev: 8000, MaxSpeed: 60, MaxAccel: 120, HomingSpeed: 15,
				HomingDirection: joint.Negative, MinAngle: -180, MaxAngle: 180,
				ReadyPosition: 0, CalibrationOffset: 0,
			},
			{
				Name: "J5", Device: 4, StepPin: 30, DirPin: 31, HomeSwitchPin: 18,
				StepsPerRev: 8000, MaxSpeed: 60, MaxAccel: 120, HomingSpeed: 15,
				HomingDirection: joint.Negative, MinAngle: -105, MaxAngle: 105,
				ReadyPosition: 90, CalibrationOffset: 0.3,
			},
			{
				Name: "J6", Device: 5, StepPin: 32, DirPin: 33, HomeSwitchPin: 19,
				StepsPerRev: 4000, MaxSpeed: 80, MaxAccel: 160, HomingSpeed: 20,
				HomingDirection: joint.Negative, MinAngle: -180, MaxAngle: 180,
				ReadyPosition: 0, CalibrationOffset: 0,
			},
		},
	}
}

// Links returns the XD6 Denavit-Hartenberg chain.
func Links() [6]kinematics.Link {
	const d2r = math.Pi / 180
	return [6]kinematics.Link{
		{ThetaOffset: 0, Alpha: -90 * d2r, D: 184, A: 65},
		{ThetaOffset: -90 * d2r, Alpha: 0, D: 0, A: 300},
		{ThetaOffset: 180 * d2r, Alpha: 90 * d2r, D: 0, A: 0},
		{ThetaOffset: 0, Alpha: -90 * d2r, D: 227.328, A: 0},
		{ThetaOffset: 0, Alpha: 90 * d2r, D: 0, A: 0},
		{ThetaOffset: 0, Alpha: 0, D: 43, A: 0},
	}
}

// Ranges derives the kinematic joint ranges from the joint table.
func (a Arm) Ranges() [6]kinematics.Range {
	var out [6]kinematics.Range
	for i, j := range a.Joints {
		out[i] = kinematics.Range{Min: j.MinAngle, Max: j.MaxAngle}
	}
	return out
}

// Engine builds the kinematics engine for this configuration.
func (a Arm) Engine() *kinematics.Engine {
	return kinematics.NewEngine(Links(), a.Ranges())
}

// Validate checks every joint and the cross-joint invariants.
func (a Arm) Validate() error {
	seen := make(map[int]string)
	for _, j := range a.Joints {
		if err := j.Validate(); err != nil {
			return err
		}
		if prev, dup := seen[j.Device]; dup {
			return fmt.Errorf("%w: %s and %s share device %d",
				joint.ErrMisconfigured, prev, j.Name, j.Device)
		}
		seen[j.Device] = j.Name
	}
	return nil
}

// Load parses a JSON configuration. Fields absent from a listed joint object
// keep their default values, and an absent "joints" key keeps the whole
// default table. A "joints" array shorter than six entries leaves the joints
// past its end zeroed, which fails validation. The result is validated.
func Load(data []byte) (Arm, error) {
	arm := Default()
	if err := json.Unmarshal(data, &arm); err != nil {
		return Arm{}, fmt.Errorf("config: %w", err)
	}
	if err := arm.Validate(); err != nil {
		return Arm{}, err
	}
	return arm, nil
}
