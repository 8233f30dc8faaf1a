// Package gateway exposes the AccelStepper subsystem of a Firmata
// microcontroller as asynchronous per-device commands with completion
// futures. It owns the transport: all writes are serialized here, and a
// background read loop demultiplexes completion and position reports by
// device index.
package gateway

import (
	"errors"
	"io"
	"sync"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/xiaohai-huang/XD6/firmata"
)

// ErrDown reports that the transport failed. The condition is terminal: all
// pending futures fail with it and every later command is refused.
var ErrDown = errors.New("gateway: transport down")

// motionEntry tracks one outstanding motion command for a device.
//
// stopped marks a move interrupted by a stop command. The firmware never
// reports a stopped move, so the entry stays queued and is resolved by the
// next completion that arrives for the device (in practice the zero-step
// fence issued right after the stop).
type motionEntry struct {
	c       *Completion
	stopped bool
}

// Gateway is the host-side face of the stepper firmware.
type Gateway struct {
	port io.ReadWriteCloser
	log  *log.Entry

	writeMu sync.Mutex

	mu       sync.Mutex
	motions  map[int][]*motionEntry
	reports  map[int][]*Completion
	pinFns   map[int][]func(level bool)
	pinState map[int]bool
	downErr  error
	closed   bool

	down chan struct{}
	done chan struct{}
}

// New wraps an open transport and starts the read loop.
func New(port io.ReadWriteCloser) *Gateway {
	g := &Gateway{
		port:     port,
		log:      log.WithField("component", "gateway"),
		motions:  make(map[int][]*motionEntry),
		reports:  make(map[int][]*Completion),
		pinFns:   make(map[int][]func(bool)),
		pinState: make(map[int]bool),
		down:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	g.log.Info("gateway up, read loop started")
	go g.readLoop()
	return g
}

// ConfigureStepper registers a step/direction driver with the firmware.
// One-time per device.
func (g *Gateway) ConfigureStepper(device, stepPin, dirPin int) error {
	return g.write(firmata.ConfigureDriver(byte(device), byte(stepPin), byte(dirPin)))
}

// SetSpeed sets the device's maximum speed in steps per second.
func (g *Gateway) SetSpeed(device int, stepsPerSec float64) error {
	return g.write(firmata.SetSpeed(byte(device), stepsPerSec))
}

// SetAcceleration sets the device's acceleration in steps per second
// squared. Zero selects the firmware's constant-speed mode.
func (g *Gateway) SetAcceleration(device int, stepsPerSecSq float64) error {
	return g.write(firmata.SetAcceleration(byte(device), stepsPerSecSq))
}

// StepRelative commands a relative move and returns its completion future.
// A zero-step move still completes and is the fence primitive callers use to
// drain queued motion state. Issuing a new motion while one is pending
// supersedes the pending one.
func (g *Gateway) StepRelative(device int, steps int32) (*Completion, error) {
	return g.motion(device, firmata.Step(byte(device), steps))
}

// StepTo commands an absolute move and returns its completion future.
func (g *Gateway) StepTo(device int, position int32) (*Completion, error) {
	return g.motion(device, firmata.To(byte(device), position))
}

// Stop halts the device. The firmware does not report a completion for the
// interrupted move; its future is held and resolves together with the next
// completion on the device, which callers provide by issuing a zero-step
// fence.
func (g *Gateway) Stop(device int) error {
	g.mu.Lock()
	for _, e := range g.motions[device] {
		e.stopped = true
	}
	g.mu.Unlock()
	return g.write(firmata.Stop(byte(device)))
}

// ReportPosition queries the device's absolute step counter.
func (g *Gateway) ReportPosition(device int) (*Completion, error) {
	c := newCompletion()
	g.mu.Lock()
	if g.downErr != nil {
		g.mu.Unlock()
		return nil, g.downErr
	}
	g.reports[device] = append(g.reports[device], c)
	g.mu.Unlock()

	if err := g.write(firmata.ReportPosition(byte(device))); err != nil {
		g.dropReport(device, c)
		return nil, err
	}
	return c, nil
}

// Zero resets the device's absolute step counter to zero.
func (g *Gateway) Zero(device int) error {
	return g.write(firmata.Zero(byte(device)))
}

// Enable switches the stepper driver on or off.
func (g *Gateway) Enable(device int, on bool) error {
	return g.write(firmata.Enable(byte(device), on))
}

// WatchPin configures the pin as an input with pull-up, enables reporting
// for its digital port, and invokes fn on every level change.
func (g *Gateway) WatchPin(pin int, fn func(level bool)) error {
	g.mu.Lock()
	g.pinFns[pin] = append(g.pinFns[pin], fn)
	g.mu.Unlock()

	if err := g.write(firmata.SetPinMode(byte(pin), firmata.PinModeInputPullup)); err != nil {
		return err
	}
	return g.write(firmata.ReportDigitalPort(byte(pin/8), true))
}

// Down returns a channel closed when the transport fails.
func (g *Gateway) Down() <-chan struct{} {
	return g.down
}

// Err returns the terminal transport error, or nil while healthy.
func (g *Gateway) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.downErr
}

// Close shuts the gateway down and closes the transport. Pending futures
// fail with ErrDown.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	err := g.port.Close()
	<-g.done
	g.fail(ErrDown)
	g.log.Info("gateway closed")
	return err
}

func (g *Gateway) motion(device int, frame []byte) (*Completion, error) {
	c := newCompletion()
	g.mu.Lock()
	if g.downErr != nil {
		g.mu.Unlock()
		return nil, g.downErr
	}
	kept := g.motions[device][:0]
	for _, e := range g.motions[device] {
		if e.stopped {
			kept = append(kept, e)
		} else {
			e.c.resolve(0, ErrSuperseded)
		}
	}
	g.motions[device] = append(kept, &motionEntry{c: c})
	g.mu.Unlock()

	if err := g.write(frame); err != nil {
		g.dropMotion(device, c)
		return nil, err
	}
	return c, nil
}

func (g *Gateway) write(frame []byte) error {
	g.mu.Lock()
	if g.downErr != nil {
		g.mu.Unlock()
		return g.downErr
	}
	g.mu.Unlock()

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.log.Debugf("send % X", frame)
	n, err := g.port.Write(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		g.fail(pkgerrors.Wrapf(ErrDown, "gateway write: %v", err))
		return ErrDown
	}
	return nil
}

func (g *Gateway) readLoop() {
	defer close(g.done)

	scanner := firmata.NewScanner()
	buf := make([]byte, 256)
	for {
		n, err := g.port.Read(buf)
		if n > 0 {
			for _, msg := range scanner.Feed(buf[:n]) {
				g.dispatch(msg)
			}
		}
		if err != nil {
			g.mu.Lock()
			closed := g.closed
			g.mu.Unlock()
			if !closed {
				g.fail(pkgerrors.Wrapf(ErrDown, "gateway read: %v", err))
			}
			return
		}
	}
}

func (g *Gateway) dispatch(msg firmata.Message) {
	switch msg.Kind {
	case firmata.KindSysex:
		g.log.Debugf("recv sysex % X", msg.Sysex)
		reply, ok := firmata.ParseStepperReply(msg.Sysex)
		if !ok {
			return
		}
		switch reply.Cmd {
		case firmata.StepperMoveComplete:
			g.completeMotion(reply.Device, reply.Position)
		case firmata.StepperReportPosition:
			g.completeReport(reply.Device, reply.Position)
		}

	case firmata.KindDigital:
		g.log.Debugf("recv digital port %d bits %#04x", msg.Port, msg.Bits)
		g.dispatchDigital(msg.Port, msg.Bits)
	}
}

// completeMotion resolves the device's held stopped entries and the oldest
// live entry with the reported position.
func (g *Gateway) completeMotion(device int, pos int32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	queue := g.motions[device]
	var rest []*motionEntry
	for i, e := range queue {
		e.c.resolve(pos, nil)
		if !e.stopped {
			rest = queue[i+1:]
			break
		}
	}
	g.motions[device] = append(g.motions[device][:0], rest...)
}

func (g *Gateway) completeReport(device int, pos int32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	queue := g.reports[device]
	if len(queue) == 0 {
		return
	}
	queue[0].resolve(pos, nil)
	g.reports[device] = append(g.reports[device][:0], queue[1:]...)
}

func (g *Gateway) dispatchDigital(port int, bits uint16) {
	g.mu.Lock()
	var calls []func(bool)
	var levels []bool
	for bit := 0; bit < 8; bit++ {
		pin := port*8 + bit
		fns := g.pinFns[pin]
		if len(fns) == 0 {
			continue
		}
		level := bits&(1<<bit) != 0
		prev, seen := g.pinState[pin]
		if seen && prev == level {
			continue
		}
		g.pinState[pin] = level
		for _, fn := range fns {
			calls = append(calls, fn)
			levels = append(levels, level)
		}
	}
	g.mu.Unlock()

	for i, fn := range calls {
		fn(levels[i])
	}
}

// fail marks the gateway down and resolves every pending future with the
// terminal error.
func (g *Gateway) fail(err error) {
	g.mu.Lock()
	if g.downErr != nil {
		g.mu.Unlock()
		return
	}
	g.downErr = err
	closed := g.closed
	for device, queue := range g.motions {
		for _, e := range queue {
			e.c.resolve(0, err)
		}
		delete(g.motions, device)
	}
	for device, queue := range g.reports {
		for _, c := range queue {
			c.resolve(0, err)
		}
		delete(g.reports, device)
	}
	g.mu.Unlock()
	if closed {
		g.log.Debug("draining pending commands on close")
	} else {
		g.log.WithError(err).Error("transport down, failing pending commands")
	}
	close(g.down)
}

func (g *Gateway) dropMotion(device int, c *Completion) {
	g.mu.Lock()
	defer g.mu.Unlock()
	queue := g.motions[device]
	for i, e := range queue {
		if e.c == c {
			g.motions[device] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

func (g *Gateway) dropReport(device int, c *Completion) {
	g.mu.Lock()
	defer g.mu.Unlock()
	queue := g.reports[device]
	for i, e := range queue {
		if e == c {
			g.reports[device] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}
