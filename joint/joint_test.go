package joint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaohai-huang/XD6/gateway"
	"github.com/xiaohai-huang/XD6/limitswitch"
	"github.com/xiaohai-huang/XD6/sim"
)

// testConfig is a small joint that homes in tens of milliseconds against
// the simulator.
func testConfig() Config {
	return Config{
		Name: "J1", Device: 0, StepPin: 22, DirPin: 23, HomeSwitchPin: 14,
		StepsPerRev: 3600, MaxSpeed: 50, MaxAccel: 100, HomingSpeed: 10,
		HomingDirection: Negative, MinAngle: -90, MaxAngle: 90,
		ReadyPosition: 10, CalibrationOffset: 0.5,
	}
}

type rig struct {
	mcu *sim.MCU
	gw  *gateway.Gateway
	sw  *limitswitch.Switch
	c   *Controller
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	mcu := sim.New(sim.WithSpeedScale(500))
	gw := gateway.New(mcu)
	t.Cleanup(func() { _ = gw.Close() })

	sw := limitswitch.New(cfg.Name, limitswitch.WithDebounce(0))
	c, err := New(cfg, gw, sw)
	require.NoError(t, err)
	return &rig{mcu: mcu, gw: gw, sw: sw, c: c}
}

// home drives a full successful cycle: the simulator presses the switch
// partway into the seek.
func (r *rig) home(t *testing.T, ctx context.Context) {
	t.Helper()
	seekSteps := r.seekSteps()
	r.mcu.OnThreshold(r.c.Config().Device, int32(float64(seekSteps)*0.4), func() { r.sw.Set(true) })
	require.NoError(t, r.c.Home(ctx))
}

func (r *rig) seekSteps() int {
	cfg := r.c.Config()
	deg := (abs(cfg.MinAngle) + abs(cfg.MaxAngle) + 5) * cfg.HomingDirection.Sign()
	return int(deg * cfg.StepsPerDegree())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero steps per rev", func(c *Config) { c.StepsPerRev = 0 }},
		{"negative speed", func(c *Config) { c.MaxSpeed = -1 }},
		{"homing faster than max", func(c *Config) { c.HomingSpeed = c.MaxSpeed + 1 }},
		{"empty range", func(c *Config) { c.MinAngle, c.MaxAngle = 10, 10 }},
		{"ready outside range", func(c *Config) { c.ReadyPosition = 200 }},
		{"device out of bounds", func(c *Config) { c.Device = 6 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig()
			test.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMisconfigured)
		})
	}

	assert.NoError(t, testConfig().Validate())
}

func TestMotionRequiresHoming(t *testing.T) {
	r := newRig(t, testConfig())
	ctx := testCtx(t)

	stepsBefore, stepTosBefore := r.mcu.Counts(0)
	_, err := r.c.RotateTo(ctx, 45)
	assert.ErrorIs(t, err, ErrNotHomed)
	_, err = r.c.RotateBy(ctx, 5)
	assert.ErrorIs(t, err, ErrNotHomed)

	// Nothing reached the wire.
	stepsAfter, stepTosAfter := r.mcu.Counts(0)
	assert.Equal(t, stepsBefore, stepsAfter)
	assert.Equal(t, stepTosBefore, stepTosAfter)
}

func TestFenceAllowedAnyTime(t *testing.T) {
	r := newRig(t, testConfig())
	ctx := testCtx(t)

	r.mcu.SetPosition(0, 1234)
	prev := r.c.Angle()

	ok, err := r.c.RotateBy(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, prev, r.c.Angle(), "fence must not move the tracked angle")
}

func TestOutOfRangeRejectedBeforeWire(t *testing.T) {
	r := newRig(t, testConfig())
	ctx := testCtx(t)
	r.home(t, ctx)

	steps, stepTos := r.mcu.Counts(0)
	_, err := r.c.RotateTo(ctx, r.c.Config().MaxAngle+1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = r.c.RotateBy(ctx, 1000)
	assert.ErrorIs(t, err, ErrOutOfRange)

	stepsAfter, stepTosAfter := r.mcu.Counts(0)
	assert.Equal(t, steps, stepsAfter)
	assert.Equal(t, stepTos, stepTosAfter)
}

func TestRotateToTracksReportedPosition(t *testing.T) {
	r := newRig(t, testConfig())
	ctx := testCtx(t)
	r.home(t, ctx)

	reached, err := r.c.RotateTo(ctx, 36)
	require.NoError(t, err)
	assert.True(t, reached)
	assert.InDelta(t, 36, r.c.Angle(), r.c.Config().StepsPerDegree())
	assert.Equal(t, int32(360), r.mcu.Position(0))

	reached, err = r.c.RotateBy(ctx, -6)
	require.NoError(t, err)
	assert.True(t, reached)
	assert.InDelta(t, 30, r.c.Angle(), 0.2)
}

func TestStopRestoresAcceleration(t *testing.T) {
	r := newRig(t, testConfig())
	ctx := testCtx(t)

	require.NoError(t, r.c.SetAcceleration(73.5))
	require.NoError(t, r.c.Stop(ctx))
	assert.Equal(t, 73.5, r.c.State().Accel)
}

func TestReportAngle(t *testing.T) {
	r := newRig(t, testConfig())
	ctx := testCtx(t)

	r.mcu.SetPosition(0, 1800) // half a revolution of the joint
	angle, err := r.c.ReportAngle(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 180, angle, 1e-9)
	assert.InDelta(t, 180, r.c.Angle(), 1e-9)
}
