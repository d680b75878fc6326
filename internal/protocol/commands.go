package protocol

// K32W061 ISP frame types
const (
	TypeResetReq             = 0x14
	TypeResetResp            = 0x15
	TypeExecuteReq           = 0x21
	TypeSetBaudRateReq       = 0x27
	TypeSetBaudRateResp      = 0x28
	TypeGetDeviceInfoReq     = 0x32
	TypeGetDeviceInfoResp    = 0x33
	TypeOpenMemoryReq        = 0x40
	TypeOpenMemoryResp       = 0x41
	TypeEraseMemoryReq       = 0x42
	TypeEraseMemoryResp      = 0x43
	TypeCheckBlankMemoryReq  = 0x44
	TypeCheckBlankMemoryResp = 0x45
	TypeWriteMemoryReq       = 0x48
	TypeWriteMemoryResp      = 0x49
	TypeCloseMemoryReq       = 0x4A
	TypeCloseMemoryResp      = 0x4B
	TypeEnableISPModeReq     = 0x4E
	TypeEnableISPModeResp    = 0x4F
)

// Header flag bits (byte 0 of every frame)
const (
	FlagReserved     = 1 << 0
	FlagHasSHA256Sig = 1 << 1
	FlagHasNextHash  = 1 << 2
)

// Frame layout
const (
	HeaderSize   = 4
	ChecksumSize = 4

	// MinFrameSize is an empty-payload frame.
	MinFrameSize = HeaderSize + ChecksumSize

	// StatusFrameSize is a response carrying only the status byte.
	StatusFrameSize = MinFrameSize + 1

	// MaxFrameSize is bounded by the 16-bit size field.
	MaxFrameSize = 0xFFFF
)

// Memory access parameters
const (
	AccessModeReadWrite = 0x0F
	EraseModeNormal     = 0x00
	BlankCheckNormal    = 0x00
	WriteModeNormal     = 0x00
)

// Unlock key
const (
	UnlockKeySize = 16

	unlockNoKey   = 0x00
	unlockWithKey = 0x01
)

// MemoryID identifies an addressable memory region on the target.
type MemoryID byte

const (
	MemoryFlash  MemoryID = 0x00
	MemoryPSect  MemoryID = 0x01
	MemoryPFlash MemoryID = 0x02
	MemoryConfig MemoryID = 0x03
	MemoryEFuse  MemoryID = 0x04
	MemoryROM    MemoryID = 0x05
	MemoryRAM0   MemoryID = 0x06
	MemoryRAM1   MemoryID = 0x07
)

var memoryNames = map[MemoryID]string{
	MemoryFlash:  "flash",
	MemoryPSect:  "psect",
	MemoryPFlash: "pflash",
	MemoryConfig: "config",
	MemoryEFuse:  "efuse",
	MemoryROM:    "rom",
	MemoryRAM0:   "ram0",
	MemoryRAM1:   "ram1",
}

// String returns the region name used on the command line.
func (id MemoryID) String() string {
	if name, ok := memoryNames[id]; ok {
		return name
	}
	return "unknown"
}

// ParseMemoryID maps a region name to its MemoryID.
func ParseMemoryID(name string) (MemoryID, bool) {
	for id, n := range memoryNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// MemoryNames returns all region names in MemoryID order.
func MemoryNames() []string {
	names := make([]string, 0, len(memoryNames))
	for id := MemoryFlash; id <= MemoryRAM1; id++ {
		names = append(names, memoryNames[id])
	}
	return names
}

// Status codes carried in the first response payload byte
const (
	StatusSuccess             = 0x00
	StatusMemoryInvalidMode   = 0xEF
	StatusMemoryBadState      = 0xF0
	StatusMemoryTooLong       = 0xF1
	StatusMemoryOutOfRange    = 0xF2
	StatusMemoryAccessInvalid = 0xF3
	StatusMemoryNotSupported  = 0xF4
	StatusMemoryInvalid       = 0xF5
)

// StatusMessage returns human-readable status message
func StatusMessage(code byte) string {
	switch code {
	case StatusSuccess:
		return "success"
	case StatusMemoryInvalidMode:
		return "memory invalid mode"
	case StatusMemoryBadState:
		return "memory bad state"
	case StatusMemoryTooLong:
		return "memory too long"
	case StatusMemoryOutOfRange:
		return "memory out of range"
	case StatusMemoryAccessInvalid:
		return "memory access invalid"
	case StatusMemoryNotSupported:
		return "memory not supported"
	case StatusMemoryInvalid:
		return "memory invalid"
	default:
		return "unknown status"
	}
}

// TypeName returns the frame type name for diagnostics.
func TypeName(t byte) string {
	switch t {
	case TypeResetReq:
		return "ResetReq"
	case TypeResetResp:
		return "ResetResp"
	case TypeExecuteReq:
		return "ExecuteReq"
	case TypeSetBaudRateReq:
		return "SetBaudRateReq"
	case TypeSetBaudRateResp:
		return "SetBaudRateResp"
	case TypeGetDeviceInfoReq:
		return "GetDeviceInfoReq"
	case TypeGetDeviceInfoResp:
		return "GetDeviceInfoResp"
	case TypeOpenMemoryReq:
		return "OpenMemoryReq"
	case TypeOpenMemoryResp:
		return "OpenMemoryResp"
	case TypeEraseMemoryReq:
		return "EraseMemoryReq"
	case TypeEraseMemoryResp:
		return "EraseMemoryResp"
	case TypeCheckBlankMemoryReq:
		return "CheckBlankMemoryReq"
	case TypeCheckBlankMemoryResp:
		return "CheckBlankMemoryResp"
	case TypeWriteMemoryReq:
		return "WriteMemoryReq"
	case TypeWriteMemoryResp:
		return "WriteMemoryResp"
	case TypeCloseMemoryReq:
		return "CloseMemoryReq"
	case TypeCloseMemoryResp:
		return "CloseMemoryResp"
	case TypeEnableISPModeReq:
		return "EnableISPModeReq"
	case TypeEnableISPModeResp:
		return "EnableISPModeResp"
	default:
		return "Unknown"
	}
}
