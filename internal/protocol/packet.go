package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math/bits"
)

var (
	ErrShortFrame       = errors.New("frame too short")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrSizeMismatch     = errors.New("size field mismatch")
	ErrInvalidKey       = errors.New("invalid unlock key")
)

// Handle is an opened memory region as returned by the device.
type Handle byte

// DeviceInfo is the identity tuple returned by GetDeviceInfo.
// The zero value means the device could not be identified.
type DeviceInfo struct {
	ChipID  uint32
	Version uint32
}

// StatusError is a response that carried a non-success status byte.
type StatusError struct {
	// Op is the frame type name of the failed request
	Op string

	// Status is the code reported by the device
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%02X)", e.Op, StatusMessage(e.Status), e.Status)
}

// Request represents an ISP request frame before serialization.
type Request struct {
	Flags   byte
	Type    byte
	Payload []byte
}

// Response represents a validated ISP response frame.
type Response struct {
	Flags byte
	Type  byte
	Size  uint16

	// Status is the first payload byte, if any
	Status    byte
	HasStatus bool

	// Data is the payload following the status byte
	Data []byte
}

// NewRequest creates a new request frame of the given type.
func NewRequest(frameType byte, payload []byte) *Request {
	return &Request{
		Type:    frameType,
		Payload: payload,
	}
}

// Size returns the serialized length of the request.
func (r *Request) Size() int {
	return HeaderSize + len(r.Payload) + ChecksumSize
}

// Encode serializes the request with its size field and checksum set.
func (r *Request) Encode() []byte {
	// Frame format:
	// 0: flags
	// 1-2: total size (big-endian)
	// 3: type
	// 4..n-4: payload
	// n-4..n: CRC-32
	size := r.Size()
	frame := make([]byte, size)

	frame[0] = r.Flags
	binary.BigEndian.PutUint16(frame[1:3], uint16(size))
	frame[3] = r.Type
	copy(frame[HeaderSize:], r.Payload)

	InsertChecksum(frame, ComputeChecksum(frame))
	return frame
}

// ComputeChecksum returns the CRC-32 of everything but the trailing checksum.
func ComputeChecksum(frame []byte) uint32 {
	if len(frame) < ChecksumSize {
		return 0
	}
	return crc32.ChecksumIEEE(frame[:len(frame)-ChecksumSize])
}

// InsertChecksum writes crc into the last four bytes of frame.
// The value goes through a network-order swap first and is then emitted
// low byte first, which puts the most significant CRC byte on the wire first.
func InsertChecksum(frame []byte, crc uint32) {
	if len(frame) < ChecksumSize {
		return
	}
	swapped := bits.ReverseBytes32(crc)

	n := len(frame) - ChecksumSize
	frame[n+0] = byte(swapped & 0xFF)
	frame[n+1] = byte((swapped >> 8) & 0xFF)
	frame[n+2] = byte((swapped >> 16) & 0xFF)
	frame[n+3] = byte((swapped >> 24) & 0xFF)
}

// ExtractChecksum reads the trailing checksum of frame.
func ExtractChecksum(frame []byte) uint32 {
	if len(frame) < ChecksumSize {
		return 0
	}
	n := len(frame)
	crc := uint32(frame[n-1])
	crc |= uint32(frame[n-2]) << 8
	crc |= uint32(frame[n-3]) << 16
	crc |= uint32(frame[n-4]) << 24
	return crc
}

// ChecksumValid reports whether the trailing checksum matches the frame.
func ChecksumValid(frame []byte) bool {
	if len(frame) < MinFrameSize {
		return false
	}
	return ExtractChecksum(frame) == ComputeChecksum(frame)
}

// FrameHasType reports whether the header type byte equals frameType.
func FrameHasType(frame []byte, frameType byte) bool {
	if len(frame) < HeaderSize {
		return false
	}
	return frame[3] == frameType
}

// ResponseHasSuccessStatus reports whether the status byte is Success.
func ResponseHasSuccessStatus(frame []byte) bool {
	if len(frame) <= HeaderSize {
		return false
	}
	return frame[HeaderSize] == StatusSuccess
}

// DecodeResponse parses and checks a raw response frame.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) < MinFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}

	if !ChecksumValid(data) {
		return nil, fmt.Errorf("%w: got 0x%08X, computed 0x%08X",
			ErrChecksumMismatch, ExtractChecksum(data), ComputeChecksum(data))
	}

	size := binary.BigEndian.Uint16(data[1:3])
	if int(size) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrSizeMismatch, size, len(data))
	}

	resp := &Response{
		Flags: data[0],
		Size:  size,
		Type:  data[3],
	}

	payload := data[HeaderSize : len(data)-ChecksumSize]
	if len(payload) > 0 {
		resp.Status = payload[0]
		resp.HasStatus = true
		resp.Data = payload[1:]
	}

	return resp, nil
}

// IsSuccess returns true if the response carries a success status.
func (r *Response) IsSuccess() bool {
	return r.HasStatus && r.Status == StatusSuccess
}

// HasSHA256Signature reports the header signature flag.
func (r *Response) HasSHA256Signature() bool {
	return r.Flags&FlagHasSHA256Sig != 0
}

// HasNextHash reports the header next-hash flag.
func (r *Response) HasNextHash() bool {
	return r.Flags&FlagHasNextHash != 0
}

// EnableISPModeData creates the payload for ENABLE_ISP_MODE.
// An empty key requests unlock without a key.
func EnableISPModeData(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return []byte{unlockNoKey}, nil
	}
	if len(key) != UnlockKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidKey, UnlockKeySize, len(key))
	}

	data := make([]byte, 1+UnlockKeySize)
	data[0] = unlockWithKey
	copy(data[1:], key)
	return data, nil
}

// OpenMemoryData creates the payload for OPEN_MEMORY.
func OpenMemoryData(id MemoryID) []byte {
	return []byte{byte(id), AccessModeReadWrite}
}

// memoryRangeData lays out {handle, mode, address, length} with the
// 32-bit fields in device (little-endian) order.
func memoryRangeData(handle Handle, mode byte, address, length uint32) []byte {
	data := make([]byte, 10)
	data[0] = byte(handle)
	data[1] = mode
	binary.LittleEndian.PutUint32(data[2:6], address)
	binary.LittleEndian.PutUint32(data[6:10], length)
	return data
}

// EraseMemoryData creates the payload for ERASE_MEMORY.
func EraseMemoryData(handle Handle, address, length uint32) []byte {
	return memoryRangeData(handle, EraseModeNormal, address, length)
}

// BlankCheckData creates the payload for CHECK_BLANK_MEMORY.
func BlankCheckData(handle Handle, address, length uint32) []byte {
	return memoryRangeData(handle, BlankCheckNormal, address, length)
}

// WriteMemoryData creates the payload for WRITE_MEMORY carrying chunk.
func WriteMemoryData(handle Handle, address uint32, chunk []byte) []byte {
	header := memoryRangeData(handle, WriteModeNormal, address, uint32(len(chunk)))
	payload := make([]byte, len(header)+len(chunk))
	copy(payload, header)
	copy(payload[len(header):], chunk)
	return payload
}

// CloseMemoryData creates the payload for CLOSE_MEMORY.
func CloseMemoryData(handle Handle) []byte {
	return []byte{byte(handle)}
}

// reverseSpeed swaps the four bytes of a baud rate end to end.
func reverseSpeed(speed uint32) uint32 {
	return (speed&0x000000FF)<<24 | (speed&0x0000FF00)<<8 |
		(speed&0x00FF0000)>>8 | (speed&0xFF000000)>>24
}

// SetBaudRateData creates the payload for SET_BAUD_RATE.
func SetBaudRateData(speed uint32) []byte {
	data := make([]byte, 5)
	data[0] = 0x00 // reserved
	binary.LittleEndian.PutUint32(data[1:5], reverseSpeed(speed))
	return data
}

// ParseDeviceInfo parses the GET_DEVICE_INFO data following the status byte.
func ParseDeviceInfo(data []byte) (DeviceInfo, error) {
	if len(data) < 8 {
		return DeviceInfo{}, fmt.Errorf("device info too short: %d bytes", len(data))
	}
	return DeviceInfo{
		ChipID:  binary.LittleEndian.Uint32(data[0:4]),
		Version: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}
