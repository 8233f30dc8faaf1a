package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xd6Links() [6]Link {
	const d2r = math.Pi / 180
	return [6]Link{
		{ThetaOffset: 0, Alpha: -90 * d2r, D: 184, A: 65},
		{ThetaOffset: -90 * d2r, Alpha: 0, D: 0, A: 300},
		{ThetaOffset: 180 * d2r, Alpha: 90 * d2r, D: 0, A: 0},
		{ThetaOffset: 0, Alpha: -90 * d2r, D: 227.328, A: 0},
		{ThetaOffset: 0, Alpha: 90 * d2r, D: 0, A: 0},
		{ThetaOffset: 0, Alpha: 0, D: 43, A: 0},
	}
}

func xd6Ranges() [6]Range {
	return [6]Range{
		{-170, 170}, {-90, 90}, {-120, 120}, {-180, 180}, {-105, 105}, {-180, 180},
	}
}

func newTestEngine() *Engine {
	return NewEngine(xd6Links(), xd6Ranges())
}

func TestForwardHomePosition(t *testing.T) {
	e := newTestEngine()

	got := e.Forward([6]float64{0, 0, 0, 0, 0, 0}).Clean()
	want := Transform{
		{0, 0, 1, 335.328},
		{0, 1, 0, 0},
		{-1, 0, 0, 484},
		{0, 0, 0, 1},
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.InDeltaf(t, want[i][j], got[i][j], 1e-9, "T[%d][%d]", i, j)
		}
	}

	// ry sits at the gimbal singularity; only rz-rx is determined there.
	pose := e.ForwardPose([6]float64{0, 0, 0, 0, 0, 0})
	assert.InDelta(t, 90.0, pose.RY, 1e-6)
	assert.InDelta(t, 0.0, pose.RZ-pose.RX, 1e-6)
}

func TestForwardSeeds(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		q    [6]float64
		want Pose
	}{
		{
			q:    [6]float64{5, 10, 3, 5, 6, 1},
			want: Pose{X: 377.78, Y: 33.445, Z: 414.322, RX: 162.69, RY: 70.086, RZ: 167.213},
		},
		{
			q:    [6]float64{-150, 45, 20, 31, 22, 100},
			want: Pose{X: -322.812, Y: -195.955, Z: 148.134, RX: -177.573, RY: -12.341, RZ: -98.81},
		},
	}

	for _, test := range tests {
		got := e.ForwardPose(test.q)
		assert.InDelta(t, test.want.X, got.X, 1e-3)
		assert.InDelta(t, test.want.Y, got.Y, 1e-3)
		assert.InDelta(t, test.want.Z, got.Z, 1e-3)
		assert.InDelta(t, test.want.RX, got.RX, 1e-3)
		assert.InDelta(t, test.want.RY, got.RY, 1e-3)
		assert.InDelta(t, test.want.RZ, got.RZ, 1e-3)
	}
}

func TestForwardTransformShape(t *testing.T) {
	e := newTestEngine()

	for _, q := range [][6]float64{
		{0, 0, 0, 0, 0, 0},
		{10, 20, -30, 15, 45, -20},
		{-120, 40, 0, 20, 50, -45},
		{60, -30, 30, -90, 80, 120},
	} {
		tr := e.Forward(q)
		assert.Equal(t, [4]float64{0, 0, 0, 1}, tr[3])

		// Rotation columns orthonormal.
		for c := 0; c < 3; c++ {
			norm := tr[0][c]*tr[0][c] + tr[1][c]*tr[1][c] + tr[2][c]*tr[2][c]
			assert.InDelta(t, 1.0, norm, 1e-6)
		}
		for a := 0; a < 3; a++ {
			for b := a + 1; b < 3; b++ {
				dot := tr[0][a]*tr[0][b] + tr[1][a]*tr[1][b] + tr[2][a]*tr[2][b]
				assert.InDelta(t, 0.0, dot, 1e-6)
			}
		}
	}
}

func TestInverseSeeds(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		pose Pose
		want [6]float64
	}{
		{
			pose: Pose{X: 292.328, Y: 0, Z: 441, RX: 180, RY: 0, RZ: 180},
			want: [6]float64{0, 0, 0, 0, 90, 0},
		},
		{
			pose: Pose{X: 297.448, Y: 48.897, Z: 435.504, RX: 149.105, RY: -9.278, RZ: 174.709},
			want: [6]float64{5, 2, 1, 32, 90, 12},
		},
	}

	for _, test := range tests {
		got, err := e.Inverse(test.pose, WristFlip)
		require.NoError(t, err)
		for i := range got {
			assert.InDeltaf(t, test.want[i], got[i], 1e-3, "J%d", i+1)
		}
	}
}

func TestInverseRoundTrip(t *testing.T) {
	e := newTestEngine()

	fixtures := [][6]float64{
		{0, 0, 0, 0, 90, 0},
		{10, 20, -30, 15, 45, -20},
		{30, -20, 15, 40, 60, 10},
		{-45, 30, -40, -60, 75, 30},
		{90, 10, 10, 10, 30, 10},
		{-120, 40, 0, 20, 50, -45},
		{20, 5, 5, 5, 5, 5},
		{60, -30, 30, -90, 80, 120},
		{15, 35, -25, 10, 100, -60},
		{-10, -15, 20, 25, -45, 35},
	}

	for _, q := range fixtures {
		pose := e.ForwardPose(q)

		// Either wrist configuration must recover the original angles.
		got, err := e.Inverse(pose, WristFlip)
		require.NoErrorf(t, err, "q=%v", q)
		if maxDiff(got, q) > 1e-3 {
			got, err = e.Inverse(pose, WristNoFlip)
			require.NoErrorf(t, err, "q=%v (NF)", q)
		}
		assert.LessOrEqualf(t, maxDiff(got, q), 1e-3, "q=%v got=%v", q, got)

		// And whichever solution comes back must reproduce the pose.
		sol, err := e.Inverse(pose, WristFlip)
		require.NoError(t, err)
		back := e.ForwardPose(sol)
		assert.InDelta(t, pose.X, back.X, 1e-6)
		assert.InDelta(t, pose.Y, back.Y, 1e-6)
		assert.InDelta(t, pose.Z, back.Z, 1e-6)
	}
}

func TestInverseUnreachable(t *testing.T) {
	e := newTestEngine()

	_, err := e.Inverse(Pose{X: 2000, Y: 0, Z: 2000, RX: 180, RY: 0, RZ: 180}, WristFlip)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestInverseRangeViolation(t *testing.T) {
	links := xd6Links()
	ranges := xd6Ranges()
	ranges[0] = Range{-10, 10} // clamp the base hard
	e := NewEngine(links, ranges)

	// A target well off to the side needs |J1| > 10.
	pose := e.ForwardPose([6]float64{0, 0, 0, 0, 90, 0})
	pose.Y += 300
	_, err := e.Inverse(pose, WristFlip)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestToolFrameRoundTrip(t *testing.T) {
	e := newTestEngine()
	tool := Identity()
	tool[2][3] = 30 // 30mm along the flange normal
	e.SetTool(tool)

	q := [6]float64{10, 20, -30, 15, 45, -20}
	pose := e.ForwardPose(q)
	got, err := e.Inverse(pose, WristFlip)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxDiff(got, q), 1e-3)
}

func TestJ1Angle(t *testing.T) {
	tests := []struct {
		x, y float64
		want float64
	}{
		{-113.262, 196.176, 120},
		{-39.335, -223.083, -100},
		{100, 0, 0},
		{100, 100, 45},
		{0, 50, -90},
		{0, -50, -90},
		{-100, -100, -135},
		{-100, 0, -180},
	}

	for _, test := range tests {
		got := J1Angle(test.x, test.y)
		assert.InDeltaf(t, test.want, got, 1e-3, "J1Angle(%v, %v)", test.x, test.y)
		assert.Greater(t, got, -180.000001)
		assert.LessOrEqual(t, got, 180.0)
	}
}

func TestCleanNormalizesResidues(t *testing.T) {
	tr := Identity()
	tr[0][1] = 1e-12
	tr[2][0] = -3e-11
	cleaned := tr.Clean()
	assert.Zero(t, cleaned[0][1])
	assert.Zero(t, cleaned[2][0])
	assert.Equal(t, 1.0, cleaned[0][0])
}

func maxDiff(a, b [6]float64) float64 {
	var max float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > max {
			max = d
		}
	}
	return max
}
