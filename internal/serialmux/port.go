package serialmux

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// SerialPorter is the part of a serial port the mux uses. Tests substitute
// TestableSerialPort or MockSerialPort.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// DefaultBaudRate is the rate the pendulum board and the reference
// anemometer both talk at.
const DefaultBaudRate = 115200

// PortOptions are the line settings for a real port. Zero values mean 8N1
// at DefaultBaudRate.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

var parities = map[string]struct {
	letter string
	mode   serial.Parity
}{
	"":     {"N", serial.NoParity},
	"N":    {"N", serial.NoParity},
	"NONE": {"N", serial.NoParity},
	"E":    {"E", serial.EvenParity},
	"EVEN": {"E", serial.EvenParity},
	"O":    {"O", serial.OddParity},
	"ODD":  {"O", serial.OddParity},
}

var stopBits = map[int]serial.StopBits{
	1: serial.OneStopBit,
	2: serial.TwoStopBits,
}

// Normalize fills in defaults and reduces Parity to N, E or O.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}

	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if _, ok := stopBits[o.StopBits]; !ok {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	p, ok := parities[strings.ToUpper(strings.TrimSpace(o.Parity))]
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	o.Parity = p.letter
	return o, nil
}

// SerialMode returns the go.bug.st/serial mode for the normalized options.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		StopBits: stopBits[n.StopBits],
		Parity:   parities[n.Parity].mode,
	}, nil
}

// NewRealSerialMux opens the device at path and wraps it in a SerialMux.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return NewSerialMux[serial.Port](port), nil
}
