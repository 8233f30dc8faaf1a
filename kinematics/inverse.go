package kinematics

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange reports that the inverse solution violates a joint range or
// that the target is outside the reachable workspace.
var ErrOutOfRange = errors.New("kinematics: solution out of range")

// WristConfig selects between the two spherical-wrist solutions, which
// differ in the sign of q5 and the matching q4/q6 offsets.
type WristConfig int

const (
	// WristFlip is the F configuration (positive q5 branch).
	WristFlip WristConfig = iota
	// WristNoFlip is the NF configuration (negative q5 branch).
	WristNoFlip
)

// String implements fmt.Stringer.
func (w WristConfig) String() string {
	if w == WristNoFlip {
		return "NF"
	}
	return "F"
}

func (w WristConfig) other() WristConfig {
	if w == WristFlip {
		return WristNoFlip
	}
	return WristFlip
}

// J1Angle is the quadrant-complete base angle, in degrees, of the point
// (x, y). It lies in [-180°, 180°): the negative-x axis maps to -180°, with
// the deliberate ±180° seam there. Every point with x = 0 maps to -90°
// whatever the sign of y, so the angle also jumps across the positive-y
// axis.
func J1Angle(x, y float64) float64 {
	switch {
	case x == 0:
		return -90
	case x > 0:
		return deg(math.Atan(y / x))
	case y <= 0:
		return -180 + deg(math.Atan(y/x))
	default:
		return 180 + deg(math.Atan(y/x))
	}
}

// Inverse computes joint angles in degrees for the target pose. The
// preferred wrist configuration is tried first; if a wrist angle leaves its
// range, the other configuration is tried once before the range check
// fails. At the wrist singularity (r33 ≈ ±1) q4 and q6 are coupled and
// their split is whatever the analytic formulas yield.
func (e *Engine) Inverse(target Pose, w WristConfig) ([6]float64, error) {
	t06 := target.Transform().Mul(e.tool.Inverse())

	// Spherical wrist centre: back off d6 along the approach axis.
	d6 := e.links[5].D
	wc := t06.Translation().Sub(t06.ZAxis().Mul(d6))

	q1 := J1Angle(wc.X, wc.Y)

	// Rotate the wrist centre into the J1-zero frame.
	c, s := math.Cos(rad(-q1)), math.Sin(rad(-q1))
	wx := c*wc.X - s*wc.Y
	wz := wc.Z

	a1 := e.links[0].A
	d1 := e.links[0].D
	a2 := e.links[1].A
	a3 := e.links[2].A
	d4 := e.links[3].D

	l1 := wx - a1
	l4 := wz - d1
	l2 := math.Sqrt(l1*l1 + l4*l4)
	l3 := math.Sqrt(a3*a3 + d4*d4)

	cosC := (a2*a2 + l2*l2 - l3*l3) / (2 * a2 * l2)
	cosD := (l3*l3 + a2*a2 - l2*l2) / (2 * l3 * a2)
	if cosC < -1 || cosC > 1 || cosD < -1 || cosD > 1 {
		return [6]float64{}, fmt.Errorf("%w: wrist centre unreachable", ErrOutOfRange)
	}

	thB := deg(math.Atan2(l1, l4))
	thC := deg(math.Acos(cosC))
	thD := deg(math.Acos(cosD))
	thE := deg(math.Atan2(a3, d4))

	var q2 float64
	switch {
	case wx > a1 && l4 > 0:
		q2 = thB - thC
	case wx > a1:
		q2 = thB - thC + 180
	default:
		q2 = -(thB + thC)
	}
	q3 := -(thD + thE) + 90

	// Orientation: R_3_6 = R_0_3ᵀ · T_0_6. The translation terms the full
	// homogeneous product drags along never reach the entries read below.
	r36 := e.chain([]float64{q1, q2, q3}).Transpose().Mul(t06)
	r13, r23 := r36[0][2], r36[1][2]
	r31, r32, r33 := r36[2][0], r36[2][1], r36[2][2]

	wrist := func(cfg WristConfig) (float64, float64, float64) {
		root := math.Sqrt(math.Max(0, 1-r33*r33))
		if cfg == WristFlip {
			return deg(math.Atan2(r23, r13)),
				deg(math.Atan2(root, r33)),
				deg(math.Atan2(r32, -r31))
		}
		return deg(math.Atan2(-r23, -r13)),
			deg(math.Atan2(-root, r33)),
			deg(math.Atan2(-r32, r31))
	}

	q4, q5, q6 := wrist(w)
	if !e.ranges[3].Contains(q4) || !e.ranges[4].Contains(q5) || !e.ranges[5].Contains(q6) {
		q4, q5, q6 = wrist(w.other())
	}

	q := [6]float64{q1, q2, q3, q4, q5, q6}
	for i, angle := range q {
		if !e.ranges[i].Contains(angle) {
			return [6]float64{}, fmt.Errorf("%w: J%d=%.3f outside [%.3f, %.3f]",
				ErrOutOfRange, i+1, angle, e.ranges[i].Min, e.ranges[i].Max)
		}
	}
	return q, nil
}
