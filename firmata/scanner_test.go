package firmata

import (
	"bytes"
	"testing"
)

func TestScannerSysex(t *testing.T) {
	s := NewScanner()

	frame := To(2, 1500)
	msgs := s.Feed(frame)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Kind != KindSysex {
		t.Fatalf("got kind %v, want sysex", msgs[0].Kind)
	}
	if !bytes.Equal(msgs[0].Sysex, frame[1:len(frame)-1]) {
		t.Errorf("payload %v does not match frame body %v", msgs[0].Sysex, frame[1:len(frame)-1])
	}
}

func TestScannerSplitFeeds(t *testing.T) {
	s := NewScanner()
	frame := Step(0, -42)

	for _, b := range frame[:len(frame)-1] {
		if msgs := s.Feed([]byte{b}); len(msgs) != 0 {
			t.Fatalf("message completed early on byte %#x", b)
		}
	}
	msgs := s.Feed(frame[len(frame)-1:])
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after final byte, want 1", len(msgs))
	}
}

func TestScannerSkipsNoise(t *testing.T) {
	s := NewScanner()

	input := []byte{0x01, 0x7F, 0x55}
	input = append(input, Zero(1)...)
	input = append(input, 0x03)
	input = append(input, DigitalMessage|0x02, 0x04, 0x01)

	msgs := s.Feed(input)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Kind != KindSysex {
		t.Errorf("first message kind %v, want sysex", msgs[0].Kind)
	}
	if msgs[1].Kind != KindDigital {
		t.Fatalf("second message kind %v, want digital", msgs[1].Kind)
	}
	if msgs[1].Port != 2 {
		t.Errorf("digital port %d, want 2", msgs[1].Port)
	}
	if msgs[1].Bits != 0x84 {
		t.Errorf("digital bits %#x, want 0x84", msgs[1].Bits)
	}
}

func TestScannerTruncatedFrame(t *testing.T) {
	s := NewScanner()

	// A frame interrupted by a new start byte is discarded.
	input := []byte{StartSysex, AccelStepperData, StepperZero}
	input = append(input, ReportPosition(4)...)

	msgs := s.Feed(input)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	want := ReportPosition(4)
	if !bytes.Equal(msgs[0].Sysex, want[1:len(want)-1]) {
		t.Errorf("payload %v, want %v", msgs[0].Sysex, want[1:len(want)-1])
	}
}
