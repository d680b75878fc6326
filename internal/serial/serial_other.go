//go:build !linux

package serial

import (
	"errors"
	"time"
)

var errRawUnsupported = errors.New("raw serial port not supported on this platform")

// RawPort is a stub for non-Linux platforms.
// Use KindSerial there.
type RawPort struct{}

// OpenRaw always fails on non-Linux platforms.
func OpenRaw(portName string, baudRate int) (*RawPort, error) {
	return nil, errRawUnsupported
}

func (p *RawPort) Close() error                       { return errRawUnsupported }
func (p *RawPort) WriteData(data []byte) (int, error) { return 0, errRawUnsupported }
func (p *RawPort) ReadData() ([]byte, error)          { return nil, errRawUnsupported }
func (p *RawPort) SetBaudRate(baud int) error         { return errRawUnsupported }
func (p *RawPort) SetResponseTimeout(time.Duration)   {}
func (p *RawPort) Flush() error                       { return errRawUnsupported }
func (p *RawPort) SetDTR(value bool) error            { return errRawUnsupported }
func (p *RawPort) SetRTS(value bool) error            { return errRawUnsupported }
func (p *RawPort) EnterBootloader() error             { return errRawUnsupported }
func (p *RawPort) PortName() string                   { return "" }
func (p *RawPort) BaudRate() int                      { return 0 }
