package robot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xiaohai-huang/XD6/kinematics"
)

// Control loop parameters for Cartesian streaming.
const (
	controlFrequency = 50                    // Hz
	tickPeriod       = time.Second / controlFrequency
	minMoveDuration  = 0.5 // s
	settleBuffer     = 500 * time.Millisecond
)

// trajectory is the joint-space sampling of one straight-line move, owned
// by a single MoveL invocation.
type trajectory struct {
	points   [][6]float64
	duration float64 // s
}

// plan samples the straight line from start to target uniformly in
// normalized time, converting every sample through inverse kinematics
// before anything is dispatched.
func (r *Robot) plan(start, target kinematics.Pose) (*trajectory, error) {
	qStart, err := r.kin.Inverse(start, kinematics.WristFlip)
	if err != nil {
		return nil, fmt.Errorf("%w: start pose: %v", ErrIKFailed, err)
	}
	qEnd, err := r.kin.Inverse(target, kinematics.WristFlip)
	if err != nil {
		return nil, fmt.Errorf("%w: target pose: %v", ErrIKFailed, err)
	}

	// Duration from the slowest joint, floored at the minimum so short
	// hops still get a resolvable trajectory.
	duration := minMoveDuration
	for i := range qStart {
		dq := math.Abs(qEnd[i] - qStart[i])
		speed := r.joints[i].Config().MaxSpeed
		if dq > 0 && speed <= 0 {
			return nil, fmt.Errorf("robot: %s must move but has no speed limit", r.joints[i].Config().Name)
		}
		if dq > 0 && dq/speed > duration {
			duration = dq / speed
		}
	}

	n := int(math.Ceil(duration * controlFrequency))
	points := make([][6]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		s := float64(i) / float64(n)
		q, err := r.kin.Inverse(start.Lerp(target, s), kinematics.WristFlip)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d/%d: %v", ErrTrajectoryInvalid, i, n, err)
		}
		points = append(points, q)
	}
	return &trajectory{points: points, duration: duration}, nil
}

// MoveL moves the tool in a straight Cartesian line to the target pose.
//
// The whole trajectory is validated through inverse kinematics up front;
// then per-tick joint setpoints are streamed at the control frequency as
// fire-and-forget absolute moves. Each tick retargets the firmware's
// trapezoidal profile, which is what keeps the path straight in Cartesian
// space rather than in joint space. Completions are not awaited per tick;
// the previous tick's motion is simply replaced.
func (r *Robot) MoveL(ctx context.Context, target kinematics.Pose) error {
	start := r.Pose()
	traj, err := r.plan(start, target)
	if err != nil {
		return err
	}

	moveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancelMove = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.cancelMove != nil {
			r.cancelMove = nil
		}
		r.mu.Unlock()
	}()

	r.log.WithField("ticks", len(traj.points)).
		WithField("duration", traj.duration).
		Info("streaming linear move")

	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for i, q := range traj.points {
		if i > 0 {
			select {
			case <-ticker.C:
			case <-moveCtx.Done():
				return moveCtx.Err()
			}
		}
		for jIdx, jc := range r.joints {
			if err := jc.StartRotateTo(q[jIdx]); err != nil {
				return err
			}
		}
	}
	ticker.Stop()

	// Let the microcontroller physically settle on the final target.
	settle := time.Duration(traj.duration*float64(time.Second)) + settleBuffer
	select {
	case <-time.After(settle):
		return nil
	case <-moveCtx.Done():
		return moveCtx.Err()
	}
}
