package protocol

// Chip IDs
const (
	ChipIDK32W061 = 0x88888888
)

// ChipName returns human-readable name for chip ID
func ChipName(id uint32) string {
	switch id {
	case ChipIDK32W061:
		return "K32W061"
	default:
		return "unknown"
	}
}

// Flash parameters
const (
	// FlashRegionSize is the erase/blank-check length of the internal flash.
	FlashRegionSize = 0x9DE00

	// WriteChunkSize is the largest image slice sent in one write frame.
	WriteChunkSize = 512
)

// Default baud rate
const DefaultBaudRate = 115200

// DefaultUnlockKey is the 16-byte key used by the reference tooling.
var DefaultUnlockKey = []byte{
	0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88,
	0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88,
}
