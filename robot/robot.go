// Package robot coordinates the six joint controllers and the kinematics
// engine: homing, point-to-point joint moves, straight-line Cartesian moves
// streamed at the control loop frequency, and the halt path.
package robot

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/xiaohai-huang/XD6/joint"
	"github.com/xiaohai-huang/XD6/kinematics"
)

var (
	// ErrIKFailed reports that a moveL endpoint has no in-range joint
	// solution even after the wrist flip.
	ErrIKFailed = errors.New("robot: inverse kinematics failed")

	// ErrTrajectoryInvalid reports that an intermediate pose of a moveL
	// interpolation has no joint solution. Nothing was dispatched.
	ErrTrajectoryInvalid = errors.New("robot: trajectory invalid")
)

// Robot owns the six joints and the kinematics engine.
type Robot struct {
	joints [6]*joint.Controller
	kin    *kinematics.Engine
	log    *log.Entry

	mu         sync.Mutex
	cancelMove context.CancelFunc
}

// New assembles a robot from its joints and kinematics engine.
func New(joints [6]*joint.Controller, kin *kinematics.Engine) *Robot {
	return &Robot{
		joints: joints,
		kin:    kin,
		log:    log.WithField("component", "robot"),
	}
}

// Joint returns the controller at index 0-5.
func (r *Robot) Joint(i int) *joint.Controller {
	return r.joints[i]
}

// Angles returns the last known joint angles in degrees.
func (r *Robot) Angles() [6]float64 {
	var q [6]float64
	for i, j := range r.joints {
		q[i] = j.Angle()
	}
	return q
}

// Pose computes the current tool pose from the last known joint angles.
// It is recomputed on every call, never cached.
func (r *Robot) Pose() kinematics.Pose {
	return r.kin.ForwardPose(r.Angles())
}

// ReadAngles round-trips a position query on every joint and returns the
// reported angles.
func (r *Robot) ReadAngles(ctx context.Context) ([6]float64, error) {
	var q [6]float64
	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i, j := range r.joints {
		wg.Add(1)
		go func(i int, j *joint.Controller) {
			defer wg.Done()
			q[i], errs[i] = j.ReportAngle(ctx)
		}(i, j)
	}
	wg.Wait()
	return q, multierr.Combine(errs...)
}

// Home runs the homing cycles in two phases: the base joints J1-J3
// concurrently, then the wrist joints J4-J6 concurrently. Homing the base
// first keeps wrist motion out of the way of the base-link limit seeks.
func (r *Robot) Home(ctx context.Context) error {
	r.log.Info("homing base joints")
	if err := r.homePhase(ctx, r.joints[:3]); err != nil {
		return err
	}
	r.log.Info("homing wrist joints")
	return r.homePhase(ctx, r.joints[3:])
}

func (r *Robot) homePhase(ctx context.Context, joints []*joint.Controller) error {
	var wg sync.WaitGroup
	errs := make([]error, len(joints))
	for i, j := range joints {
		wg.Add(1)
		go func(i int, j *joint.Controller) {
			defer wg.Done()
			errs[i] = j.Home(ctx)
		}(i, j)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// MoveJ moves every joint to its target angle concurrently and returns when
// all have completed.
func (r *Robot) MoveJ(ctx context.Context, angles [6]float64) error {
	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i, j := range r.joints {
		wg.Add(1)
		go func(i int, j *joint.Controller) {
			defer wg.Done()
			_, errs[i] = j.RotateTo(ctx, angles[i])
		}(i, j)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// GoToReady parks every joint at its ready position concurrently.
func (r *Robot) GoToReady(ctx context.Context) error {
	var target [6]float64
	for i, j := range r.joints {
		target[i] = j.Config().ReadyPosition
	}
	return r.MoveJ(ctx, target)
}

// Halt cancels any active moveL scheduler and stops every joint. It is
// idempotent and completes even if individual stops fail.
func (r *Robot) Halt(ctx context.Context) error {
	r.mu.Lock()
	if r.cancelMove != nil {
		r.cancelMove()
		r.cancelMove = nil
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i, j := range r.joints {
		wg.Add(1)
		go func(i int, j *joint.Controller) {
			defer wg.Done()
			errs[i] = j.Stop(ctx)
		}(i, j)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// EnableDrivers powers every stepper driver on or off.
func (r *Robot) EnableDrivers(on bool) error {
	var errs []error
	for _, j := range r.joints {
		errs = append(errs, j.Enable(on))
	}
	return multierr.Combine(errs...)
}
