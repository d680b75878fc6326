// Package isp implements the K32W061 in-system-programming protocol engine.
//
// Every operation is one blocking request/response exchange over a
// Transport. A Device must not be used from more than one goroutine.
package isp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"k8s.io/klog"

	"github.com/bigbag/k32w-flasher/internal/protocol"
)

var (
	ErrShortWrite         = errors.New("short write")
	ErrUnexpectedType     = errors.New("unexpected frame type")
	ErrUnexpectedLength   = errors.New("unexpected response length")
	ErrMissingStatus      = errors.New("response carries no status")
	ErrDeviceNotConnected = errors.New("transport is nil")
)

// Transport is the byte pipe to the target.
type Transport interface {
	// WriteData writes p and returns the number of bytes accepted.
	WriteData(p []byte) (int, error)

	// ReadData blocks until at least one byte arrives or an error occurs.
	ReadData() ([]byte, error)

	// SetBaudRate switches the local line speed.
	SetBaudRate(baud int) error
}

// MCU is the set of ISP operations a target supports.
type MCU interface {
	EnableISPMode(key []byte) error
	DeviceInfo() (protocol.DeviceInfo, error)
	OpenMemory(id protocol.MemoryID) (protocol.Handle, error)
	EraseMemory(handle protocol.Handle) error
	MemoryIsErased(handle protocol.Handle) (bool, error)
	FlashMemory(handle protocol.Handle, data []byte) error
	CloseMemory(handle protocol.Handle) error
	Reset() error
	SetBaudRate(speed uint32) error
}

// TypeError reports a response of the wrong frame type.
type TypeError struct {
	Got  byte
	Want byte
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("unexpected frame type %s (0x%02X), want %s (0x%02X)",
		protocol.TypeName(e.Got), e.Got, protocol.TypeName(e.Want), e.Want)
}

func (e *TypeError) Unwrap() error {
	return ErrUnexpectedType
}

// ProgressCallback is called after every acknowledged write chunk.
type ProgressCallback func(written, total int)

// Device drives a K32W061 over a Transport.
type Device struct {
	transport  Transport
	chunkSize  int
	regionSize uint32
	// readRetries bounds the extra reads used to complete a short response
	readRetries int
	progress    ProgressCallback
}

var _ MCU = (*Device)(nil)

// New creates a new Device on the given transport.
func New(t Transport, opts ...Option) *Device {
	d := &Device{
		transport:   t,
		chunkSize:   protocol.WriteChunkSize,
		regionSize:  protocol.FlashRegionSize,
		readRetries: DefaultReadRetries,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetProgressCallback sets the progress callback function.
func (d *Device) SetProgressCallback(cb ProgressCallback) {
	d.progress = cb
}

func (d *Device) reportProgress(written, total int) {
	if d.progress != nil {
		d.progress(written, total)
	}
}

// EnableISPMode unlocks the ISP command set. An empty key unlocks without
// a key; otherwise the key must be 16 bytes. The response status is not
// checked since the device may answer without one.
func (d *Device) EnableISPMode(key []byte) error {
	data, err := protocol.EnableISPModeData(key)
	if err != nil {
		return err
	}

	req := protocol.NewRequest(protocol.TypeEnableISPModeReq, data)
	resp, err := d.exchange(req, protocol.TypeEnableISPModeResp, protocol.MinFrameSize, false)
	if err != nil {
		return fmt.Errorf("enable ISP mode: %w", err)
	}

	if resp.HasStatus && !resp.IsSuccess() {
		klog.Warningf("enable ISP mode answered with status 0x%02X (%s)",
			resp.Status, protocol.StatusMessage(resp.Status))
	}
	return nil
}

// DeviceInfo reads the chip ID and version. On failure the zero DeviceInfo
// is returned along with the error.
func (d *Device) DeviceInfo() (protocol.DeviceInfo, error) {
	req := protocol.NewRequest(protocol.TypeGetDeviceInfoReq, nil)
	resp, err := d.exchange(req, protocol.TypeGetDeviceInfoResp, protocol.StatusFrameSize+8, true)
	if err != nil {
		return protocol.DeviceInfo{}, fmt.Errorf("get device info: %w", err)
	}

	info, err := protocol.ParseDeviceInfo(resp.Data)
	if err != nil {
		return protocol.DeviceInfo{}, fmt.Errorf("get device info: %w", err)
	}
	return info, nil
}

// OpenMemory opens a memory region for read/write access and returns its handle.
func (d *Device) OpenMemory(id protocol.MemoryID) (protocol.Handle, error) {
	req := protocol.NewRequest(protocol.TypeOpenMemoryReq, protocol.OpenMemoryData(id))
	resp, err := d.exchange(req, protocol.TypeOpenMemoryResp, protocol.StatusFrameSize+1, true)
	if err != nil {
		return 0, fmt.Errorf("open memory %s: %w", id, err)
	}

	if len(resp.Data) < 1 {
		return 0, fmt.Errorf("open memory %s: %w: no handle", id, ErrUnexpectedLength)
	}
	return protocol.Handle(resp.Data[0]), nil
}

// EraseMemory erases the region behind handle.
func (d *Device) EraseMemory(handle protocol.Handle) error {
	data := protocol.EraseMemoryData(handle, 0, d.regionSize)
	req := protocol.NewRequest(protocol.TypeEraseMemoryReq, data)
	resp, err := d.exchange(req, protocol.TypeEraseMemoryResp, protocol.StatusFrameSize, true)
	if err != nil {
		return fmt.Errorf("erase memory: %w", err)
	}

	if resp.Size != protocol.StatusFrameSize {
		return fmt.Errorf("erase memory: %w: %d bytes", ErrUnexpectedLength, resp.Size)
	}
	return nil
}

// MemoryIsErased runs a blank check over the region behind handle.
// A well-formed answer with a non-success status means the region is not
// blank and is reported as false with no error.
func (d *Device) MemoryIsErased(handle protocol.Handle) (bool, error) {
	data := protocol.BlankCheckData(handle, 0, d.regionSize)
	req := protocol.NewRequest(protocol.TypeCheckBlankMemoryReq, data)
	resp, err := d.exchange(req, protocol.TypeCheckBlankMemoryResp, protocol.StatusFrameSize, false)
	if err != nil {
		return false, fmt.Errorf("check blank memory: %w", err)
	}

	if !resp.HasStatus {
		return false, fmt.Errorf("check blank memory: %w", ErrMissingStatus)
	}
	if !resp.IsSuccess() {
		klog.V(2).Infof("Blank check answered with status 0x%02X (%s)",
			resp.Status, protocol.StatusMessage(resp.Status))
		return false, nil
	}
	return true, nil
}

// FlashMemory writes data to the region behind handle in chunks of at most
// the configured chunk size, starting at address 0. The first chunk that is
// not acknowledged aborts the write; chunks already written stay written.
func (d *Device) FlashMemory(handle protocol.Handle, data []byte) error {
	total := len(data)
	remaining := total
	offset := 0

	chunkSize := d.chunkSize
	if remaining < chunkSize {
		chunkSize = remaining
	}

	for {
		chunk := data[offset : offset+chunkSize]
		klog.V(2).Infof("Write %d bytes at offset %d", chunkSize, offset)

		req := protocol.NewRequest(protocol.TypeWriteMemoryReq,
			protocol.WriteMemoryData(handle, uint32(offset), chunk))
		if _, err := d.exchange(req, protocol.TypeWriteMemoryResp, protocol.StatusFrameSize, true); err != nil {
			return fmt.Errorf("write memory at offset %d: %w", offset, err)
		}

		remaining -= chunkSize
		offset += chunkSize
		d.reportProgress(offset, total)

		if remaining < chunkSize {
			chunkSize = remaining
		}
		if remaining == 0 {
			break
		}
	}

	return nil
}

// CloseMemory releases handle.
func (d *Device) CloseMemory(handle protocol.Handle) error {
	req := protocol.NewRequest(protocol.TypeCloseMemoryReq, protocol.CloseMemoryData(handle))
	if _, err := d.exchange(req, protocol.TypeCloseMemoryResp, protocol.StatusFrameSize, true); err != nil {
		return fmt.Errorf("close memory: %w", err)
	}
	return nil
}

// Reset restarts the target.
func (d *Device) Reset() error {
	req := protocol.NewRequest(protocol.TypeResetReq, nil)
	if _, err := d.exchange(req, protocol.TypeResetResp, protocol.StatusFrameSize, true); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// SetBaudRate asks the target to change line speed and, once it has
// acknowledged, switches the transport to match.
//
// The acknowledgement is read at the old speed. If a target turns out to
// answer at the new speed, swap the order so the transport switches right
// after the request is written.
func (d *Device) SetBaudRate(speed uint32) error {
	req := protocol.NewRequest(protocol.TypeSetBaudRateReq, protocol.SetBaudRateData(speed))
	if _, err := d.exchange(req, protocol.TypeSetBaudRateResp, protocol.StatusFrameSize, true); err != nil {
		return fmt.Errorf("set baud rate %d: %w", speed, err)
	}

	if err := d.transport.SetBaudRate(int(speed)); err != nil {
		return fmt.Errorf("set local baud rate %d: %w", speed, err)
	}
	return nil
}

// exchange writes req, reads the answer and validates it against the
// expected frame type and, if wantStatus is set, a success status.
func (d *Device) exchange(req *protocol.Request, want byte, minLen int, wantStatus bool) (*protocol.Response, error) {
	if d.transport == nil {
		return nil, ErrDeviceNotConnected
	}

	frame := req.Encode()
	klog.V(3).Infof("tx %s: % X", protocol.TypeName(req.Type), frame)

	n, err := d.transport.WriteData(frame)
	if err != nil {
		return nil, err
	}
	if n != len(frame) {
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(frame))
	}

	raw, err := d.readResponse(minLen)
	if err != nil {
		return nil, err
	}
	klog.V(3).Infof("rx: % X", raw)

	resp, err := protocol.DecodeResponse(raw)
	if err != nil {
		return nil, err
	}

	if resp.Type != want {
		return nil, &TypeError{Got: resp.Type, Want: want}
	}

	if wantStatus {
		if !resp.HasStatus {
			return nil, ErrMissingStatus
		}
		if !resp.IsSuccess() {
			return nil, &protocol.StatusError{Op: protocol.TypeName(req.Type), Status: resp.Status}
		}
	}

	return resp, nil
}

// readResponse reads until the whole frame has been collected or the extra
// read budget is spent, whichever comes first. The frame length comes from
// the size field once the header has arrived; minLen is only used before.
func (d *Device) readResponse(minLen int) ([]byte, error) {
	data, err := d.read()
	if err != nil {
		return nil, err
	}

	for attempt := 0; len(data) < frameLength(data, minLen) && attempt < d.readRetries; attempt++ {
		more, err := d.read()
		if err != nil {
			return nil, err
		}
		data = append(data, more...)
	}

	return data, nil
}

// frameLength returns the length announced by the size field of a partial
// frame, or minLen while bytes 1-2 are still missing.
func frameLength(data []byte, minLen int) int {
	if len(data) < 3 {
		return minLen
	}
	size := int(binary.BigEndian.Uint16(data[1:3]))
	if size < protocol.MinFrameSize {
		return protocol.MinFrameSize
	}
	return size
}

// read returns the next non-empty read. A zero-length read means nothing
// has arrived yet and is never treated as a response.
func (d *Device) read() ([]byte, error) {
	for {
		data, err := d.transport.ReadData()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if len(data) > 0 {
			return data, nil
		}
	}
}
