package firmata

import (
	"math"
	"testing"
)

func TestSigned32RoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 127, -127, 128, 5000, -5000, 1 << 20, -(1 << 20), math.MaxInt32, math.MinInt32 + 1}

	for _, v := range values {
		enc := EncodeSigned32(v)
		for i, b := range enc {
			if b&0x80 != 0 {
				t.Errorf("EncodeSigned32(%d) byte %d has high bit set: %#x", v, i, b)
			}
		}
		got := DecodeSigned32(enc[:])
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestFloatEncoding(t *testing.T) {
	tests := []struct {
		in  float64
		tol float64
	}{
		{0, 0},
		{1, 1e-9},
		{400, 1e-6},
		{-400, 1e-6},
		{21.098, 1e-4},
		{12345.67, 1e-2},
		{0.05, 1e-9},
		{1e6, 1},
		{2.5e6, 1},
	}

	for _, test := range tests {
		enc := EncodeFloat(test.in)
		for i, b := range enc {
			if b&0x80 != 0 {
				t.Errorf("EncodeFloat(%v) byte %d has high bit set: %#x", test.in, i, b)
			}
		}
		got := DecodeFloat(enc[:])
		if math.Abs(got-test.in) > test.tol {
			t.Errorf("EncodeFloat(%v) decoded to %v (tolerance %v)", test.in, got, test.tol)
		}
	}
}

func TestFloatZero(t *testing.T) {
	enc := EncodeFloat(0)
	if enc != [4]byte{} {
		t.Errorf("EncodeFloat(0) = %v, want zero bytes", enc)
	}
	if got := DecodeFloat(enc[:]); got != 0 {
		t.Errorf("DecodeFloat(zero bytes) = %v", got)
	}
}

func TestParseStepperReply(t *testing.T) {
	pos := EncodeSigned32(-1234)
	payload := []byte{AccelStepperData, StepperMoveComplete, 3, pos[0], pos[1], pos[2], pos[3], pos[4]}

	reply, ok := ParseStepperReply(payload)
	if !ok {
		t.Fatal("expected valid reply")
	}
	if reply.Cmd != StepperMoveComplete || reply.Device != 3 || reply.Position != -1234 {
		t.Errorf("unexpected reply: %+v", reply)
	}

	if _, ok := ParseStepperReply([]byte{AccelStepperData, StepperConfig, 0}); ok {
		t.Error("config subcommand should not parse as a reply")
	}
	if _, ok := ParseStepperReply([]byte{0x6F, StepperMoveComplete, 0}); ok {
		t.Error("other sysex features should not parse")
	}
	if _, ok := ParseStepperReply(payload[:5]); ok {
		t.Error("short payload should not parse")
	}
}
