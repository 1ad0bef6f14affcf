// Package serialport wraps the serial connection to the device and the
// USB-based device discovery. The transfer engines only see an
// io.ReadWriter; this package owns opening, configuring, and finding the
// underlying port.
package serialport

import (
	"log/slog"
	"time"

	"github.com/rtgs-lab/sdlink/pkg/errors"
	"go.bug.st/serial"
)

// Port is the open serial connection. Reads honor the configured read
// timeout, returning (0, nil) when it elapses.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	ResetInputBuffer() error
}

// Config holds serial connection parameters.
type Config struct {
	// Device path (e.g. "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate. The device firmware runs its command link at 1000000.
	Baud int

	// ReadTimeout bounds each low-level read so polling loops never hang.
	ReadTimeout time.Duration
}

// DefaultConfig returns the standard connection parameters for a device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        1000000,
		ReadTimeout: time.Second,
	}
}

// Open opens and configures the serial port.
func Open(cfg *Config) (Port, error) {
	slog.Info("serial_open", "device", cfg.Device, "baud", cfg.Baud)

	port, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		slog.Error("serial_open_failed", "device", cfg.Device, "error", err)
		return nil, errors.Wrapf(err, "failed to open serial port %s", cfg.Device)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		slog.Error("serial_set_timeout_failed", "device", cfg.Device, "error", err)
		return nil, errors.Wrap(err, "failed to set read timeout")
	}

	slog.Info("serial_ready", "device", cfg.Device)
	return port, nil
}
