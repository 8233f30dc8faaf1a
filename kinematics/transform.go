// Package kinematics implements the arm's geometry: Denavit-Hartenberg
// forward kinematics and the closed-form inverse for a 6-DOF arm with a
// spherical wrist. Angles are radians internally; the public API speaks
// degrees and millimetres.
package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
)

// Transform is a 4x4 homogeneous transform, row-major.
type Transform [4][4]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// DH builds the standard Denavit-Hartenberg link transform from
// (theta, alpha, d, a).
func DH(theta, alpha, d, a float64) Transform {
	ct, st := math.Cos(theta), math.Sin(theta)
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	return Transform{
		{ct, -st * ca, st * sa, a * ct},
		{st, ct * ca, -ct * sa, a * st},
		{0, sa, ca, d},
		{0, 0, 0, 1},
	}
}

// Mul returns t·o.
func (t Transform) Mul(o Transform) Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += t[i][k] * o[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Transpose returns the full 4x4 transpose.
func (t Transform) Transpose() Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = t[j][i]
		}
	}
	return out
}

// Inverse returns the rigid-body inverse: the rotation transposed and the
// translation rotated back.
func (t Transform) Inverse() Transform {
	var out Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = t[j][i]
		}
	}
	for i := 0; i < 3; i++ {
		out[i][3] = -(out[i][0]*t[0][3] + out[i][1]*t[1][3] + out[i][2]*t[2][3])
	}
	out[3] = [4]float64{0, 0, 0, 1}
	return out
}

// Translation returns the position column.
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t[0][3], Y: t[1][3], Z: t[2][3]}
}

// ZAxis returns the third column of the rotation, the tool approach
// direction.
func (t Transform) ZAxis() r3.Vector {
	return r3.Vector{X: t[0][2], Y: t[1][2], Z: t[2][2]}
}

// cleanEpsilon is the magnitude below which Clean snaps entries to zero.
const cleanEpsilon = 1e-10

// Clean returns a copy with near-zero entries normalized to exactly zero,
// for stable fixtures and readable dumps.
func (t Transform) Clean() Transform {
	out := t
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(out[i][j]) < cleanEpsilon {
				out[i][j] = 0
			}
		}
	}
	return out
}
