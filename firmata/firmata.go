// Package firmata implements the subset of the Firmata protocol the host
// needs to drive the AccelStepper subsystem of a ConfigurableFirmata
// microcontroller: sysex framing, the 7-bit wire encodings, the stepper
// command set, and digital input reporting for limit switches.
package firmata

// Framing bytes
const (
	StartSysex = 0xF0
	EndSysex   = 0xF7
)

// Non-sysex command bytes (upper nibble for channel messages)
const (
	DigitalMessage = 0x90 // digital port value, two data bytes follow
	ReportDigital  = 0xD0 // enable/disable digital port reporting
	SetPinModeCmd  = 0xF4 // set pin mode, two data bytes follow
)

// Sysex feature IDs
const (
	AccelStepperData = 0x62
)

// AccelStepper subcommands
const (
	StepperConfig         = 0x00
	StepperZero           = 0x01
	StepperStep           = 0x02
	StepperTo             = 0x03
	StepperEnable         = 0x04
	StepperStop           = 0x05
	StepperReportPosition = 0x06
	StepperSetAccel       = 0x08
	StepperSetSpeed       = 0x09
	StepperMoveComplete   = 0x0A
)

// Pin modes
const (
	PinModeInput       = 0x00
	PinModeOutput      = 0x01
	PinModeInputPullup = 0x0B
)

// AccelStepper interface nibbles for the configure message. The wire count
// occupies bits 4-6, the step size bits 1-3, and bit 0 flags an enable pin.
const (
	WireDriver   = 0x01
	WireTwo      = 0x02
	WireFour     = 0x04
	StepWhole    = 0x00
	StepHalf     = 0x01
	StepQuarter  = 0x02
)

// MaxDevices is the number of stepper devices the subsystem addresses.
const MaxDevices = 10

// MaxSysexLength bounds incoming sysex payloads; anything longer is treated
// as a framing error and dropped.
const MaxSysexLength = 64
