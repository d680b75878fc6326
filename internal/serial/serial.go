package serial

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// ErrReadTimeout is returned by ReadData when a response timeout is set
// and nothing arrived in time.
var ErrReadTimeout = errors.New("timeout waiting for data")

const (
	readBufferSize = 100
	pollInterval   = 100 * time.Millisecond
)

// Conn is an open link to the target: a byte pipe plus the control lines
// used to enter the bootloader.
type Conn interface {
	WriteData(data []byte) (int, error)
	ReadData() ([]byte, error)
	SetBaudRate(baud int) error
	SetResponseTimeout(timeout time.Duration)
	EnterBootloader() error
	Close() error
}

var (
	_ Conn = (*Port)(nil)
	_ Conn = (*RawPort)(nil)
)

// Kind selects the Conn implementation.
type Kind string

const (
	KindSerial Kind = "serial"
	KindRaw    Kind = "raw"
)

// OpenConn opens portName with the implementation selected by kind.
func OpenConn(kind Kind, portName string, baudRate int) (Conn, error) {
	switch kind {
	case KindSerial, "":
		p, err := Open(portName, baudRate)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindRaw:
		p, err := OpenRaw(portName, baudRate)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// Port wraps a go.bug.st serial port.
type Port struct {
	port            serial.Port
	portName        string
	baudRate        int
	responseTimeout time.Duration
}

// Open opens a serial port with the specified baud rate.
func Open(portName string, baudRate int) (*Port, error) {
	port, err := serial.Open(portName, lineMode(baudRate))
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	// Set read timeout
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// lineMode is 8N1 at baudRate.
func lineMode(baudRate int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// WriteData writes data and waits for it to leave the output buffer.
func (p *Port) WriteData(data []byte) (int, error) {
	n, err := p.port.Write(data)
	if err != nil {
		return n, err
	}
	if err := p.port.Drain(); err != nil {
		return n, fmt.Errorf("drain: %w", err)
	}
	return n, nil
}

// ReadData blocks until at least one byte is available. Poll timeouts are
// not errors; they only count against the response timeout, if one is set.
func (p *Port) ReadData() ([]byte, error) {
	buf := make([]byte, readBufferSize)

	var deadline time.Time
	if p.responseTimeout > 0 {
		deadline = time.Now().Add(p.responseTimeout)
	}

	for {
		n, err := p.port.Read(buf)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return buf[:n], nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrReadTimeout
		}
	}
}

// SetResponseTimeout bounds ReadData. Zero waits forever.
func (p *Port) SetResponseTimeout(timeout time.Duration) {
	p.responseTimeout = timeout
}

// SetBaudRate reconfigures the line speed and discards pending input.
func (p *Port) SetBaudRate(baud int) error {
	if err := p.port.SetMode(lineMode(baud)); err != nil {
		return fmt.Errorf("failed to set baud rate %d: %w", baud, err)
	}
	p.baudRate = baud
	return p.Flush()
}

// Flush discards any buffered data.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// SetDTR sets the DTR signal.
func (p *Port) SetDTR(value bool) error {
	return p.port.SetDTR(value)
}

// SetRTS sets the RTS signal.
func (p *Port) SetRTS(value bool) error {
	return p.port.SetRTS(value)
}

// EnterBootloader holds the ISP line while pulsing reset.
// RTS drives RESET_N and DTR drives the ISP entry pin, both active high
// through the usual transistor inverters.
func (p *Port) EnterBootloader() error {
	return enterBootloader(p)
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
