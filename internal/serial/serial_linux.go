//go:build linux

package serial

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Baud rate constants
var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

// baudCode returns the termios speed code for baud.
func baudCode(baud int) (uint32, error) {
	code, ok := baudRates[baud]
	if !ok {
		return 0, fmt.Errorf("unsupported baud rate: %d", baud)
	}
	return code, nil
}

// RawPort is a UART driven directly through termios ioctls.
type RawPort struct {
	fd              int
	portName        string
	baudRate        int
	responseTimeout time.Duration
}

// OpenRaw opens portName as a raw 8N1 line at baudRate.
func OpenRaw(portName string, baudRate int) (*RawPort, error) {
	code, err := baudCode(baudRate)
	if err != nil {
		return nil, err
	}

	// O_NONBLOCK keeps open from waiting on carrier detect
	fd, err := unix.Open(portName, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to clear O_NONBLOCK: %w", err)
	}

	p := &RawPort{
		fd:       fd,
		portName: portName,
		baudRate: baudRate,
	}

	if err := p.configure(code); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return p, nil
}

func (p *RawPort) configure(code uint32) error {
	t, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr failed: %w", err)
	}

	// Configure for raw mode (like cfmakeraw)
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS

	// 8N1, enable receiver, local mode
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	setSpeed(t, code)

	// VMIN=0, VTIME=1: reads return after 100ms even when empty
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1

	if err := unix.IoctlSetTermios(p.fd, unix.TCSETSW, t); err != nil {
		return fmt.Errorf("tcsetattr failed: %w", err)
	}
	return nil
}

func setSpeed(t *unix.Termios, code uint32) {
	t.Cflag &^= unix.CBAUD
	t.Cflag |= code
	t.Ispeed = code
	t.Ospeed = code
}

// Close closes the port.
func (p *RawPort) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

// WriteData writes data and waits until it has been transmitted.
func (p *RawPort) WriteData(data []byte) (int, error) {
	n, err := unix.Write(p.fd, data)
	if err != nil {
		return n, err
	}
	if err := p.drain(); err != nil {
		return n, fmt.Errorf("drain: %w", err)
	}
	return n, nil
}

// drain waits for output to be transmitted (tcdrain)
func (p *RawPort) drain() error {
	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
}

// ReadData blocks until at least one byte is available or the response
// timeout, if any, runs out.
func (p *RawPort) ReadData() ([]byte, error) {
	buf := make([]byte, readBufferSize)

	var deadline time.Time
	if p.responseTimeout > 0 {
		deadline = time.Now().Add(p.responseTimeout)
	}

	for {
		n, err := unix.Read(p.fd, buf)
		if err != nil && err != unix.EINTR && err != unix.EAGAIN {
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
func (p *RawPort) SetResponseTimeout(timeout time.Duration) {
	p.responseTimeout = timeout
}

// SetBaudRate reprograms the line speed and discards pending input.
func (p *RawPort) SetBaudRate(baud int) error {
	code, err := baudCode(baud)
	if err != nil {
		return err
	}

	t, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr failed: %w", err)
	}
	setSpeed(t, code)
	if err := unix.IoctlSetTermios(p.fd, unix.TCSETSW, t); err != nil {
		return fmt.Errorf("failed to set baud rate %d: %w", baud, err)
	}

	p.baudRate = baud
	return p.Flush()
}

// Flush discards any buffered data
func (p *RawPort) Flush() error {
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// SetDTR sets the DTR signal
func (p *RawPort) SetDTR(value bool) error {
	return p.setModemBit(unix.TIOCM_DTR, value)
}

// SetRTS sets the RTS signal
func (p *RawPort) SetRTS(value bool) error {
	return p.setModemBit(unix.TIOCM_RTS, value)
}

func (p *RawPort) setModemBit(bit int, value bool) error {
	req := uint(unix.TIOCMBIC)
	if value {
		req = unix.TIOCMBIS
	}
	return unix.IoctlSetPointerInt(p.fd, req, bit)
}

// EnterBootloader holds the ISP line while pulsing reset.
func (p *RawPort) EnterBootloader() error {
	return enterBootloader(p)
}

// PortName returns the port name
func (p *RawPort) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate
func (p *RawPort) BaudRate() int {
	return p.baudRate
}
