package kinematics

import "math"

// Pose is a Cartesian tool pose: translation in millimetres, orientation as
// ZYX-extrinsic Euler angles in degrees.
type Pose struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	RX float64 `json:"rx"`
	RY float64 `json:"ry"`
	RZ float64 `json:"rz"`
}

// Transform builds the homogeneous transform Rz(rz)·Ry(ry)·Rx(rx) with the
// pose translation.
func (p Pose) Transform() Transform {
	cx, sx := math.Cos(rad(p.RX)), math.Sin(rad(p.RX))
	cy, sy := math.Cos(rad(p.RY)), math.Sin(rad(p.RY))
	cz, sz := math.Cos(rad(p.RZ)), math.Sin(rad(p.RZ))
	return Transform{
		{cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx, p.X},
		{sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx, p.Y},
		{-sy, cy * sx, cy * cx, p.Z},
		{0, 0, 0, 1},
	}
}

// PoseFrom extracts the pose from a transform using the ZYX-extrinsic
// convention. At the ry = ±90° gimbal singularity only the difference
// rz − rx is determined; the individual values are whatever the arithmetic
// yields.
func PoseFrom(t Transform) Pose {
	ry := math.Atan2(-t[2][0], math.Sqrt(t[0][0]*t[0][0]+t[1][0]*t[1][0]))
	cy := math.Cos(ry)
	rx := math.Atan2(t[2][1]/cy, t[2][2]/cy)
	rz := math.Atan2(t[1][0]/cy, t[0][0]/cy)
	return Pose{
		X:  t[0][3],
		Y:  t[1][3],
		Z:  t[2][3],
		RX: deg(rx),
		RY: deg(ry),
		RZ: deg(rz),
	}
}

// Lerp interpolates component-wise toward o at fraction s in [0,1]. Euler
// components are interpolated numerically with no angle wrapping; moves
// whose orientation crosses the ±180° seam must be split by the caller.
func (p Pose) Lerp(o Pose, s float64) Pose {
	t := 1 - s
	return Pose{
		X:  t*p.X + s*o.X,
		Y:  t*p.Y + s*o.Y,
		Z:  t*p.Z + s*o.Z,
		RX: t*p.RX + s*o.RX,
		RY: t*p.RY + s*o.RY,
		RZ: t*p.RZ + s*o.RZ,
	}
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
