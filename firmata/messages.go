package firmata

// sysex wraps an AccelStepper payload in sysex framing.
func sysex(payload ...byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, StartSysex)
	out = append(out, payload...)
	return append(out, EndSysex)
}

// ConfigureDriver builds the configure message for a step/direction driver
// (wire count 1, whole steps, no enable pin).
func ConfigureDriver(device, stepPin, dirPin byte) []byte {
	iface := byte(WireDriver<<4 | StepWhole<<1)
	return sysex(AccelStepperData, StepperConfig, device, iface, stepPin&0x7F, dirPin&0x7F)
}

// Zero builds the message that resets the device's absolute step counter.
func Zero(device byte) []byte {
	return sysex(AccelStepperData, StepperZero, device)
}

// Step builds a relative move of the given number of steps.
func Step(device byte, steps int32) []byte {
	enc := EncodeSigned32(steps)
	return sysex(AccelStepperData, StepperStep, device, enc[0], enc[1], enc[2], enc[3], enc[4])
}

// To builds an absolute move to the given step position.
func To(device byte, position int32) []byte {
	enc := EncodeSigned32(position)
	return sysex(AccelStepperData, StepperTo, device, enc[0], enc[1], enc[2], enc[3], enc[4])
}

// Enable builds the driver enable/disable message.
func Enable(device byte, on bool) []byte {
	var state byte
	if on {
		state = 1
	}
	return sysex(AccelStepperData, StepperEnable, device, state)
}

// Stop builds the message that halts the device immediately.
func Stop(device byte) []byte {
	return sysex(AccelStepperData, StepperStop, device)
}

// ReportPosition builds the absolute position query.
func ReportPosition(device byte) []byte {
	return sysex(AccelStepperData, StepperReportPosition, device)
}

// SetAcceleration builds the acceleration message in steps/s^2.
func SetAcceleration(device byte, stepsPerSecSq float64) []byte {
	enc := EncodeFloat(stepsPerSecSq)
	return sysex(AccelStepperData, StepperSetAccel, device, enc[0], enc[1], enc[2], enc[3])
}

// SetSpeed builds the maximum speed message in steps/s.
func SetSpeed(device byte, stepsPerSec float64) []byte {
	enc := EncodeFloat(stepsPerSec)
	return sysex(AccelStepperData, StepperSetSpeed, device, enc[0], enc[1], enc[2], enc[3])
}

// SetPinMode builds the pin mode message (not sysex framed).
func SetPinMode(pin, mode byte) []byte {
	return []byte{SetPinModeCmd, pin & 0x7F, mode}
}

// ReportDigitalPort builds the message enabling value reporting for a
// digital port (a bank of eight pins).
func ReportDigitalPort(port byte, on bool) []byte {
	var state byte
	if on {
		state = 1
	}
	return []byte{ReportDigital | port&0x0F, state}
}

// MoveCompleteReply builds the frame a microcontroller sends when a move
// finishes. Exported for simulators and tests.
func MoveCompleteReply(device byte, position int32) []byte {
	enc := EncodeSigned32(position)
	return sysex(AccelStepperData, StepperMoveComplete, device, enc[0], enc[1], enc[2], enc[3], enc[4])
}

// PositionReply builds the frame a microcontroller sends in response to a
// position query. Exported for simulators and tests.
func PositionReply(device byte, position int32) []byte {
	enc := EncodeSigned32(position)
	return sysex(AccelStepperData, StepperReportPosition, device, enc[0], enc[1], enc[2], enc[3], enc[4])
}

// DigitalReply builds a digital port report. Exported for simulators and
// tests.
func DigitalReply(port byte, bits uint16) []byte {
	return []byte{DigitalMessage | port&0x0F, byte(bits & 0x7F), byte((bits >> 7) & 0x7F)}
}

// StepperReply is a decoded AccelStepper response.
type StepperReply struct {
	Cmd      byte // StepperMoveComplete or StepperReportPosition
	Device   int
	Position int32
}

// ParseStepperReply decodes a sysex payload (without framing bytes) as an
// AccelStepper response. It returns false for payloads of other features or
// subcommands the host never receives.
func ParseStepperReply(payload []byte) (StepperReply, bool) {
	if len(payload) < 3 || payload[0] != AccelStepperData {
		return StepperReply{}, false
	}
	cmd := payload[1]
	if cmd != StepperMoveComplete && cmd != StepperReportPosition {
		return StepperReply{}, false
	}
	if len(payload) < 8 {
		return StepperReply{}, false
	}
	return StepperReply{
		Cmd:      cmd,
		Device:   int(payload[2]),
		Position: DecodeSigned32(payload[3:8]),
	}, true
}
