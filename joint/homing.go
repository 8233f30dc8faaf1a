package joint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrHomingFailed reports that a home cycle ran out of travel without the
// limit switch closing. The joint stays un-homed.
var ErrHomingFailed = errors.New("joint: homing failed")

// settleTime lets the switch debounce and the mechanics come to rest
// between the seek and the calibration move.
const settleTime = 500 * time.Millisecond

// preCheckBackoff is how far the joint backs away from an already-active
// switch before retrying the cycle.
const preCheckBackoff = 15.0

// maxPreCheckRetries bounds the back-off recursion; a switch still active
// after this many back-offs is stuck or miswired.
const maxPreCheckRetries = 4

// Home runs the homing cycle: seek the limit switch at constant speed,
// settle, move to the calibrated origin, zero the device counter, then park
// at the ready position. Range checks are bypassed for the duration of the
// cycle.
func (c *Controller) Home(ctx context.Context) error {
	c.mu.Lock()
	if c.homing {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s: cycle already running", ErrHomingFailed, c.cfg.Name)
	}
	c.homing = true
	c.homed = false
	c.mu.Unlock()

	err := c.homeCycle(ctx, 0)

	c.mu.Lock()
	c.homing = false
	c.mu.Unlock()

	if err != nil {
		c.log.WithError(err).Error("homing failed")
		return err
	}

	if _, err := c.RotateTo(ctx, c.cfg.ReadyPosition); err != nil {
		return err
	}
	c.log.WithField("ready", c.cfg.ReadyPosition).Info("homed")
	return nil
}

func (c *Controller) homeCycle(ctx context.Context, attempt int) error {
	// A press-triggered stop may still be draining from before the cycle
	// (or from the previous seek); let it finish before touching the
	// device.
	if err := c.awaitStopDrain(ctx); err != nil {
		return err
	}

	// PreCheck: a joint resting on its switch at boot backs off first.
	if c.sw.Active() {
		if attempt >= maxPreCheckRetries {
			return fmt.Errorf("%w: %s: switch still active after back-off", ErrHomingFailed, c.cfg.Name)
		}
		c.log.Info("switch active before seek, backing off")
		if _, err := c.RotateBy(ctx, -preCheckBackoff*c.cfg.HomingDirection.Sign()); err != nil {
			return err
		}
		return c.homeCycle(ctx, attempt+1)
	}

	// SeekLimit: constant-velocity travel across the whole range plus
	// margin. The switch press interrupts the move through the stop
	// procedure; otherwise the distance elapses without contact.
	if err := c.SetSpeed(c.cfg.HomingSpeed); err != nil {
		return err
	}
	if err := c.SetAcceleration(0); err != nil {
		return err
	}
	seek := (math.Abs(c.cfg.MinAngle) + math.Abs(c.cfg.MaxAngle) + 5) * c.cfg.HomingDirection.Sign()
	c.log.WithField("seek", seek).Info("seeking limit switch")
	if _, err := c.RotateBy(ctx, seek); err != nil {
		return err
	}

	// The seek resolves either naturally or through the press-triggered
	// stop fence; wait out any stop procedure still restoring state.
	if err := c.awaitStopDrain(ctx); err != nil {
		return err
	}
	if err := c.SetSpeed(c.cfg.MaxSpeed); err != nil {
		return err
	}
	if err := c.SetAcceleration(c.cfg.MaxAccel); err != nil {
		return err
	}

	if !c.sw.Active() {
		return fmt.Errorf("%w: %s: travel exceeded, switch not hit", ErrHomingFailed, c.cfg.Name)
	}

	// Settle, then place the joint at its calibrated origin and zero the
	// firmware counter there.
	select {
	case <-time.After(settleTime):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.awaitStopDrain(ctx); err != nil {
		return err
	}

	var calib float64
	if c.cfg.HomingDirection == Negative {
		calib = -c.cfg.MinAngle + c.cfg.CalibrationOffset
	} else {
		calib = -c.cfg.MaxAngle + c.cfg.CalibrationOffset
	}
	if _, err := c.RotateBy(ctx, calib); err != nil {
		return err
	}
	if err := c.bus.Zero(c.cfg.Device); err != nil {
		return err
	}

	c.mu.Lock()
	c.homed = true
	c.angle = 0
	c.mu.Unlock()
	return nil
}

// awaitStopDrain blocks until any in-flight stop procedure has restored
// the device's kinematic state.
func (c *Controller) awaitStopDrain(ctx context.Context) error {
	c.mu.Lock()
	done := c.stopDone
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
