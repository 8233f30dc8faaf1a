// Package serial opens the link to the Firmata microcontroller. The Port
// interface lets the gateway run over a native port, a pseudo-terminal, or
// an in-memory simulator in tests.
package serial

import (
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// FirmataBaud is the rate StandardFirmata and ConfigurableFirmata ship at.
const FirmataBaud = 57600

// Port is the transport handed to the gateway.
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3").
	Device string

	// Baud rate.
	Baud int

	// Read timeout in milliseconds (0 = blocking).
	ReadTimeout int
}

// DefaultConfig returns the configuration for a Firmata board.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        FirmataBaud,
		ReadTimeout: 100,
	}
}

// Open opens the native serial port described by cfg. The tarm port already
// satisfies Port, so no wrapping is needed.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	log.WithField("device", cfg.Device).WithField("baud", cfg.Baud).Info("serial port open")
	return port, nil
}
