// Package sim provides an in-process AccelStepper microcontroller that
// speaks the wire protocol over an io.ReadWriteCloser. Moves progress in
// real time at the commanded speed (optionally scaled), so tests can
// exercise stops, retargets, and limit-switch interplay against the real
// gateway.
package sim

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/xiaohai-huang/XD6/firmata"
)

// threshold fires a callback when a simulated move crosses a position.
type threshold struct {
	pos   float64
	fn    func()
	fired bool
}

// move is one in-flight simulated motion.
type move struct {
	from, to float64
	start    time.Time
	dur      time.Duration
	timers   []*time.Timer
}

type device struct {
	configured bool
	enabled    bool
	pos        float64
	speed      float64 // steps/s
	accel      float64
	mv         *move

	steps      int // relative move commands seen
	stepTos    int // absolute move commands seen
	thresholds []*threshold
}

// MCU is the simulated microcontroller. It implements the transport
// interface the gateway expects.
type MCU struct {
	mu         sync.Mutex
	devices    map[int]*device
	scanner    *firmata.Scanner
	speedScale float64
	closed     bool

	pr *io.PipeReader
	pw *io.PipeWriter
}

// Option configures the MCU.
type Option func(*MCU)

// WithSpeedScale multiplies all commanded speeds, shortening simulated move
// durations by the same factor.
func WithSpeedScale(f float64) Option {
	return func(m *MCU) { m.speedScale = f }
}

// New creates an idle MCU.
func New(opts ...Option) *MCU {
	pr, pw := io.Pipe()
	m := &MCU{
		devices:    make(map[int]*device),
		scanner:    firmata.NewScanner(),
		speedScale: 1,
		pr:         pr,
		pw:         pw,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Read delivers the MCU's outbound frames.
func (m *MCU) Read(p []byte) (int, error) {
	return m.pr.Read(p)
}

// Write feeds host frames into the MCU.
func (m *MCU) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	msgs := m.scanner.Feed(p)
	m.mu.Unlock()

	for _, msg := range msgs {
		if msg.Kind != firmata.KindSysex {
			continue
		}
		m.handleSysex(msg.Sysex)
	}
	return len(p), nil
}

// Close tears the transport down.
func (m *MCU) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, d := range m.devices {
		m.cancelMoveLocked(d)
	}
	m.mu.Unlock()
	m.pw.Close()
	return m.pr.Close()
}

// Position returns a device's current absolute position, mid-move values
// included.
func (m *MCU) Position(devIdx int) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dev(devIdx)
	return int32(math.Round(m.currentPosLocked(d)))
}

// SetPosition teleports a device (e.g. to model an unknown boot pose).
func (m *MCU) SetPosition(devIdx int, pos int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dev(devIdx).pos = float64(pos)
}

// Enabled reports a device's driver state.
func (m *MCU) Enabled(devIdx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev(devIdx).enabled
}

// Counts returns how many relative and absolute move commands a device has
// received.
func (m *MCU) Counts(devIdx int) (steps, stepTos int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dev(devIdx)
	return d.steps, d.stepTos
}

// OnThreshold registers a callback fired once when a move crosses pos.
func (m *MCU) OnThreshold(devIdx int, pos int32, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dev(devIdx).thresholds = append(m.dev(devIdx).thresholds, &threshold{pos: float64(pos), fn: fn})
}

// EmitDigital pushes a digital port report to the host.
func (m *MCU) EmitDigital(port byte, bits uint16) {
	m.send(firmata.DigitalReply(port, bits))
}

func (m *MCU) handleSysex(payload []byte) {
	if len(payload) < 3 || payload[0] != firmata.AccelStepperData {
		return
	}
	cmd := payload[1]
	devIdx := int(payload[2])

	m.mu.Lock()
	d := m.dev(devIdx)
	var replies [][]byte
	var fired []func()

	switch cmd {
	case firmata.StepperConfig:
		d.configured = true

	case firmata.StepperZero:
		d.pos = 0

	case firmata.StepperSetSpeed:
		if len(payload) >= 7 {
			d.speed = firmata.DecodeFloat(payload[3:7])
		}

	case firmata.StepperSetAccel:
		if len(payload) >= 7 {
			d.accel = firmata.DecodeFloat(payload[3:7])
		}

	case firmata.StepperEnable:
		d.enabled = len(payload) >= 4 && payload[3] != 0

	case firmata.StepperStop:
		m.cancelMoveLocked(d)

	case firmata.StepperReportPosition:
		replies = append(replies, firmata.PositionReply(byte(devIdx), int32(math.Round(m.currentPosLocked(d)))))

	case firmata.StepperStep:
		if len(payload) >= 8 {
			d.steps++
			delta := float64(firmata.DecodeSigned32(payload[3:8]))
			replies, fired = m.startMoveLocked(devIdx, d, m.currentPosLocked(d)+delta)
		}

	case firmata.StepperTo:
		if len(payload) >= 8 {
			d.stepTos++
			replies, fired = m.startMoveLocked(devIdx, d, float64(firmata.DecodeSigned32(payload[3:8])))
		}
	}
	m.mu.Unlock()

	for _, fn := range fired {
		fn()
	}
	for _, reply := range replies {
		m.send(reply)
	}
}

// startMoveLocked begins (or retargets) a motion. A zero-length or
// instantaneous move completes inline; otherwise timers deliver threshold
// crossings and the final completion.
func (m *MCU) startMoveLocked(devIdx int, d *device, target float64) (replies [][]byte, fired []func()) {
	m.cancelMoveLocked(d)

	from := d.pos
	dist := math.Abs(target - from)
	speed := d.speed * m.speedScale
	if dist == 0 || speed <= 0 {
		d.pos = target
		fired = m.crossedLocked(d, from, target)
		replies = append(replies, firmata.MoveCompleteReply(byte(devIdx), int32(math.Round(target))))
		return replies, fired
	}

	dur := time.Duration(dist / speed * float64(time.Second))
	mv := &move{from: from, to: target, start: time.Now(), dur: dur}
	d.mv = mv

	for _, th := range d.thresholds {
		if th.fired || !between(th.pos, from, target) {
			continue
		}
		th := th
		offset := time.Duration(math.Abs(th.pos-from) / speed * float64(time.Second))
		mv.timers = append(mv.timers, time.AfterFunc(offset, func() {
			m.mu.Lock()
			already := th.fired
			th.fired = true
			m.mu.Unlock()
			if !already {
				th.fn()
			}
		}))
	}

	mv.timers = append(mv.timers, time.AfterFunc(dur, func() {
		m.mu.Lock()
		if d.mv != mv {
			m.mu.Unlock()
			return
		}
		d.mv = nil
		d.pos = target
		m.mu.Unlock()
		m.send(firmata.MoveCompleteReply(byte(devIdx), int32(math.Round(target))))
	}))
	return nil, nil
}

// cancelMoveLocked freezes an in-flight move at its elapsed position.
func (m *MCU) cancelMoveLocked(d *device) {
	mv := d.mv
	if mv == nil {
		return
	}
	for _, t := range mv.timers {
		t.Stop()
	}
	d.pos = m.currentPosLocked(d)
	d.mv = nil
}

func (m *MCU) currentPosLocked(d *device) float64 {
	mv := d.mv
	if mv == nil {
		return d.pos
	}
	frac := float64(time.Since(mv.start)) / float64(mv.dur)
	if frac >= 1 {
		return mv.to
	}
	return mv.from + (mv.to-mv.from)*frac
}

// crossedLocked marks thresholds passed by an instantaneous jump and
// returns their callbacks for invocation outside the lock.
func (m *MCU) crossedLocked(d *device, from, to float64) []func() {
	var out []func()
	for _, th := range d.thresholds {
		if !th.fired && between(th.pos, from, to) {
			th.fired = true
			out = append(out, th.fn)
		}
	}
	return out
}

func (m *MCU) dev(idx int) *device {
	d, ok := m.devices[idx]
	if !ok {
		d = &device{speed: 1}
		m.devices[idx] = d
	}
	return d
}

// send pushes a frame to the host; it blocks until the host's read loop
// consumes it.
func (m *MCU) send(frame []byte) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	_, _ = m.pw.Write(frame)
}

func between(v, a, b float64) bool {
	if a > b {
		a, b = b, a
	}
	return v >= a && v <= b
}
