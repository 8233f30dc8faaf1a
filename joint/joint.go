// Package joint implements the per-axis controller: bounded motion against
// a remote stepper device, homing against a limit switch, and the tracked
// joint state the rest of the system reads.
package joint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xiaohai-huang/XD6/gateway"
	"github.com/xiaohai-huang/XD6/limitswitch"
)

var (
	// ErrNotHomed reports a motion request on an un-homed joint.
	ErrNotHomed = errors.New("joint: not homed")

	// ErrOutOfRange reports a target outside the joint range. It is raised
	// before any wire command is issued.
	ErrOutOfRange = errors.New("joint: target out of range")
)

// Bus is the slice of the firmware gateway a joint needs. Each joint
// addresses a distinct device index on a shared gateway.
type Bus interface {
	ConfigureStepper(device, stepPin, dirPin int) error
	SetSpeed(device int, stepsPerSec float64) error
	SetAcceleration(device int, stepsPerSecSq float64) error
	StepRelative(device int, steps int32) (*gateway.Completion, error)
	StepTo(device int, position int32) (*gateway.Completion, error)
	Stop(device int) error
	ReportPosition(device int) (*gateway.Completion, error)
	Zero(device int) error
	Enable(device int, on bool) error
}

// State is a snapshot of the mutable joint state.
type State struct {
	Homed        bool
	Homing       bool
	SwitchActive bool
	Speed        float64 // deg/s
	Accel        float64 // deg/s^2
	Angle        float64 // last known angle, deg
}

// Controller drives one joint.
type Controller struct {
	cfg Config
	bus Bus
	sw  *limitswitch.Switch
	log *log.Entry

	mu     sync.Mutex
	homed  bool
	homing bool
	speed  float64
	accel  float64
	angle  float64

	// stopDone is non-nil while a stop procedure is draining the device.
	stopDone chan struct{}
}

// New validates the configuration, registers the stepper with the firmware,
// applies the operating speed and acceleration, and hooks the limit switch
// edges. The switch press is the only path by which hardware interrupts a
// motion.
func New(cfg Config, bus Bus, sw *limitswitch.Switch) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg: cfg,
		bus: bus,
		sw:  sw,
		log: log.WithField("joint", cfg.Name),
	}
	if err := bus.ConfigureStepper(cfg.Device, cfg.StepPin, cfg.DirPin); err != nil {
		return nil, err
	}
	if err := c.SetSpeed(cfg.MaxSpeed); err != nil {
		return nil, err
	}
	if err := c.SetAcceleration(cfg.MaxAccel); err != nil {
		return nil, err
	}
	sw.OnPress(c.onPress)
	sw.OnRelease(c.onRelease)
	return c, nil
}

// Config returns the joint's static configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns a snapshot of the joint state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Homed:        c.homed,
		Homing:       c.homing,
		SwitchActive: c.sw.Active(),
		Speed:        c.speed,
		Accel:        c.accel,
		Angle:        c.angle,
	}
}

// Homed reports whether the joint has completed a home cycle.
func (c *Controller) Homed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.homed
}

// Angle returns the last known joint angle in degrees. It is only
// meaningful once the joint is homed.
func (c *Controller) Angle() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.angle
}

// SetSpeed applies a maximum speed in deg/s.
func (c *Controller) SetSpeed(degPerSec float64) error {
	if err := c.bus.SetSpeed(c.cfg.Device, degPerSec*c.cfg.StepsPerDegree()); err != nil {
		return err
	}
	c.mu.Lock()
	c.speed = degPerSec
	c.mu.Unlock()
	return nil
}

// SetAcceleration applies an acceleration in deg/s^2. Zero selects
// constant-speed motion.
func (c *Controller) SetAcceleration(degPerSecSq float64) error {
	if err := c.bus.SetAcceleration(c.cfg.Device, degPerSecSq*c.cfg.StepsPerDegree()); err != nil {
		return err
	}
	c.mu.Lock()
	c.accel = degPerSecSq
	c.mu.Unlock()
	return nil
}

// RotateBy moves the joint by delta degrees relative to its last known
// angle and waits for the firmware completion. It reports whether the joint
// reached the commanded target within one-step precision; an interrupted
// move resolves false.
//
// A zero delta is a pure completion fence: it carries no preconditions,
// succeeds on any joint at any time, and leaves the tracked angle
// untouched.
func (c *Controller) RotateBy(ctx context.Context, delta float64) (bool, error) {
	if delta == 0 {
		comp, err := c.bus.StepRelative(c.cfg.Device, 0)
		if err != nil {
			return false, err
		}
		if _, err := comp.Wait(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	c.mu.Lock()
	target := c.angle + delta
	homing := c.homing
	c.mu.Unlock()
	if !homing {
		if err := c.checkTarget(target); err != nil {
			return false, err
		}
	}

	steps := int32(math.Round(delta * c.cfg.StepsPerDegree()))
	comp, err := c.bus.StepRelative(c.cfg.Device, steps)
	if err != nil {
		return false, err
	}
	return c.finishMotion(ctx, comp, target)
}

// RotateTo moves the joint to an absolute angle in degrees and waits for
// the firmware completion.
func (c *Controller) RotateTo(ctx context.Context, target float64) (bool, error) {
	c.mu.Lock()
	homing := c.homing
	c.mu.Unlock()
	if !homing {
		if err := c.checkTarget(target); err != nil {
			return false, err
		}
	}

	comp, err := c.bus.StepTo(c.cfg.Device, c.targetSteps(target))
	if err != nil {
		return false, err
	}
	return c.finishMotion(ctx, comp, target)
}

// StartRotateTo issues an absolute move without waiting for its completion.
// The reported position still updates the tracked angle whenever the
// firmware eventually completes (or is stopped and fenced); a move
// superseded by a later retarget simply never reports.
func (c *Controller) StartRotateTo(target float64) error {
	c.mu.Lock()
	homing := c.homing
	c.mu.Unlock()
	if !homing {
		if err := c.checkTarget(target); err != nil {
			return err
		}
	}

	comp, err := c.bus.StepTo(c.cfg.Device, c.targetSteps(target))
	if err != nil {
		return err
	}
	go func() {
		pos, err := comp.Wait(context.Background())
		if err != nil {
			return
		}
		c.setAngleFromSteps(pos)
	}()
	return nil
}

// Stop executes the stop procedure: halt the device, then force the ramp
// state to a known point by running a zero-step fence at zero acceleration
// before restoring the saved acceleration. The AccelStepper engine retains
// its ramp across a bare stop; the fence drains it.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopDone != nil {
		done := c.stopDone
		c.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	c.stopDone = done
	saved := c.accel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.stopDone = nil
		c.mu.Unlock()
		close(done)
	}()

	if err := c.bus.Stop(c.cfg.Device); err != nil {
		return err
	}
	if err := c.SetAcceleration(0); err != nil {
		return err
	}
	if _, err := c.RotateBy(ctx, 0); err != nil {
		return err
	}
	return c.SetAcceleration(saved)
}

// ReportAngle round-trips a position query and returns the joint angle.
func (c *Controller) ReportAngle(ctx context.Context) (float64, error) {
	comp, err := c.bus.ReportPosition(c.cfg.Device)
	if err != nil {
		return 0, err
	}
	pos, err := comp.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return c.setAngleFromSteps(pos), nil
}

// GoToReady moves the joint to its configured ready position.
func (c *Controller) GoToReady(ctx context.Context) (bool, error) {
	return c.RotateTo(ctx, c.cfg.ReadyPosition)
}

// Enable switches the stepper driver on or off.
func (c *Controller) Enable(on bool) error {
	return c.bus.Enable(c.cfg.Device, on)
}

func (c *Controller) checkTarget(target float64) error {
	c.mu.Lock()
	homed := c.homed
	c.mu.Unlock()
	if !homed {
		return fmt.Errorf("%w: %s", ErrNotHomed, c.cfg.Name)
	}
	if !c.cfg.InRange(target) {
		return fmt.Errorf("%w: %s target %.3f outside [%.3f, %.3f]",
			ErrOutOfRange, c.cfg.Name, target, c.cfg.MinAngle, c.cfg.MaxAngle)
	}
	return nil
}

// finishMotion waits for a motion completion, updates the tracked angle
// from the reported absolute step count, and compares against the
// commanded target.
func (c *Controller) finishMotion(ctx context.Context, comp *gateway.Completion, target float64) (bool, error) {
	pos, err := comp.Wait(ctx)
	if err != nil {
		return false, err
	}
	angle := c.setAngleFromSteps(pos)
	return math.Abs(angle-target) <= c.stepTolerance(), nil
}

func (c *Controller) targetSteps(deg float64) int32 {
	return int32(math.Round(deg * c.cfg.StepsPerDegree()))
}

// setAngleFromSteps derives the angle from the microcontroller's integer
// counter. Deriving from the reported count rather than the commanded
// floating-point value keeps the conversion reversible and drift-free.
func (c *Controller) setAngleFromSteps(pos int32) float64 {
	angle := float64(pos) * 360.0 / float64(c.cfg.StepsPerRev)
	c.mu.Lock()
	c.angle = angle
	c.mu.Unlock()
	return angle
}

// stepTolerance is one step expressed in degrees, padded for float
// rounding.
func (c *Controller) stepTolerance() float64 {
	return 360.0/float64(c.cfg.StepsPerRev) + 1e-9
}

// onPress runs on the switch press edge. It must not block, so the stop
// procedure is fired on its own goroutine.
func (c *Controller) onPress() {
	c.log.Info("limit switch pressed")
	go func() {
		if err := c.Stop(context.Background()); err != nil {
			c.log.WithError(err).Warn("stop after switch press failed")
		}
	}()
}

func (c *Controller) onRelease() {
	c.log.Debug("limit switch released")
}
