package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestChipName_KnownChips(t *testing.T) {
	if got := ChipName(ChipIDK32W061); got != "K32W061" {
		t.Errorf("ChipName(0x%X) = %q, want %q", uint32(ChipIDK32W061), got, "K32W061")
	}
}

func TestChipName_Unknown(t *testing.T) {
	unknownIDs := []uint32{0x00, 0x01, 0x88888889, 0xFFFFFFFF}
	for _, id := range unknownIDs {
		if got := ChipName(id); got != "unknown" {
			t.Errorf("ChipName(0x%X) = %q, want %q", id, got, "unknown")
		}
	}
}

func TestStatusMessage_AllCodes(t *testing.T) {
	tests := []struct {
		code     byte
		expected string
	}{
		{StatusSuccess, "success"},
		{StatusMemoryInvalidMode, "memory invalid mode"},
		{StatusMemoryBadState, "memory bad state"},
		{StatusMemoryTooLong, "memory too long"},
		{StatusMemoryOutOfRange, "memory out of range"},
		{StatusMemoryAccessInvalid, "memory access invalid"},
		{StatusMemoryNotSupported, "memory not supported"},
		{StatusMemoryInvalid, "memory invalid"},
	}

	for _, tc := range tests {
		if got := StatusMessage(tc.code); got != tc.expected {
			t.Errorf("StatusMessage(0x%02X) = %q, want %q", tc.code, got, tc.expected)
		}
	}
}

func TestStatusMessage_Unknown(t *testing.T) {
	for _, code := range []byte{0x01, 0x7F, 0xEE, 0xF6, 0xFF} {
		if got := StatusMessage(code); got != "unknown status" {
			t.Errorf("StatusMessage(0x%02X) = %q, want %q", code, got, "unknown status")
		}
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName(TypeWriteMemoryResp); got != "WriteMemoryResp" {
		t.Errorf("TypeName(0x49) = %q, want WriteMemoryResp", got)
	}
	if got := TypeName(0x99); got != "Unknown" {
		t.Errorf("TypeName(0x99) = %q, want Unknown", got)
	}
}

func TestMemoryID_Names(t *testing.T) {
	for i, name := range MemoryNames() {
		id, ok := ParseMemoryID(name)
		if !ok {
			t.Fatalf("ParseMemoryID(%q) not found", name)
		}
		if int(id) != i {
			t.Errorf("ParseMemoryID(%q) = %d, want %d", name, id, i)
		}
		if id.String() != name {
			t.Errorf("MemoryID(%d).String() = %q, want %q", id, id.String(), name)
		}
	}

	if _, ok := ParseMemoryID("eeprom"); ok {
		t.Error("ParseMemoryID(eeprom) found, want not found")
	}
	if got := MemoryID(0x20).String(); got != "unknown" {
		t.Errorf("MemoryID(0x20).String() = %q, want unknown", got)
	}
}

func TestEnableISPModeData_WithKey(t *testing.T) {
	data, err := EnableISPModeData(DefaultUnlockKey)
	if err != nil {
		t.Fatalf("EnableISPModeData() error = %v", err)
	}
	if len(data) != 17 {
		t.Fatalf("EnableISPModeData() length = %d, want 17", len(data))
	}
	if data[0] != 0x01 {
		t.Errorf("EnableISPModeData()[0] = 0x%02X, want 0x01", data[0])
	}
	if !bytes.Equal(data[1:], DefaultUnlockKey) {
		t.Errorf("EnableISPModeData() key = % X, want % X", data[1:], DefaultUnlockKey)
	}
}

func TestEnableISPModeData_BadKey(t *testing.T) {
	for _, key := range [][]byte{{0x01}, make([]byte, 15), make([]byte, 17)} {
		if _, err := EnableISPModeData(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("EnableISPModeData(%d bytes) error = %v, want ErrInvalidKey", len(key), err)
		}
	}
}

func TestOpenMemoryData(t *testing.T) {
	data := OpenMemoryData(MemoryPSect)
	expected := []byte{0x01, 0x0F}
	if !bytes.Equal(data, expected) {
		t.Errorf("OpenMemoryData(psect) = % X, want % X", data, expected)
	}
}

func TestEraseMemoryData_Handle(t *testing.T) {
	data := EraseMemoryData(0xFF, 0, FlashRegionSize)
	expected := []byte{0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xDE, 0x09, 0x00}
	if !bytes.Equal(data, expected) {
		t.Errorf("EraseMemoryData(0xFF) = % X, want % X", data, expected)
	}
}

func TestWriteMemoryData_AddressAndLength(t *testing.T) {
	data := WriteMemoryData(2, 1024, []byte{0xAA, 0xBB})
	expected := []byte{0x02, 0x00, 0x00, 0x04, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0xAA, 0xBB}
	if !bytes.Equal(data, expected) {
		t.Errorf("WriteMemoryData() = % X, want % X", data, expected)
	}
}

func TestCloseMemoryData(t *testing.T) {
	if data := CloseMemoryData(5); !bytes.Equal(data, []byte{0x05}) {
		t.Errorf("CloseMemoryData(5) = % X, want 05", data)
	}
}

func TestSetBaudRateData(t *testing.T) {
	tests := []struct {
		speed    uint32
		expected []byte
	}{
		{115200, []byte{0x00, 0x00, 0x01, 0xC2, 0x00}},
		{1000000, []byte{0x00, 0x00, 0x0F, 0x42, 0x40}},
		{0x01020304, []byte{0x00, 0x01, 0x02, 0x03, 0x04}},
	}

	for _, tc := range tests {
		if got := SetBaudRateData(tc.speed); !bytes.Equal(got, tc.expected) {
			t.Errorf("SetBaudRateData(%d) = % X, want % X", tc.speed, got, tc.expected)
		}
	}
}

func TestReverseSpeed(t *testing.T) {
	if got := reverseSpeed(0x11223344); got != 0x44332211 {
		t.Errorf("reverseSpeed(0x11223344) = 0x%08X, want 0x44332211", got)
	}
	if got := reverseSpeed(reverseSpeed(921600)); got != 921600 {
		t.Errorf("reverseSpeed twice = %d, want 921600", got)
	}
}

func TestParseDeviceInfo(t *testing.T) {
	info, err := ParseDeviceInfo([]byte{0x88, 0x88, 0x88, 0x88, 0x00, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("ParseDeviceInfo() error = %v", err)
	}
	if info.ChipID != 0x88888888 {
		t.Errorf("ParseDeviceInfo ChipID = 0x%X, want 0x88888888", info.ChipID)
	}
	if info.Version != 0 {
		t.Errorf("ParseDeviceInfo Version = %d, want 0", info.Version)
	}

	info, err = ParseDeviceInfo([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("ParseDeviceInfo() error = %v", err)
	}
	if info.ChipID != 0x04030201 || info.Version != 5 {
		t.Errorf("ParseDeviceInfo() = %+v, want {ChipID:0x4030201 Version:5}", info)
	}
}

func TestParseDeviceInfo_TooShort(t *testing.T) {
	info, err := ParseDeviceInfo([]byte{0x88, 0x88, 0x88})
	if err == nil {
		t.Error("ParseDeviceInfo(short) expected error, got nil")
	}
	if info != (DeviceInfo{}) {
		t.Errorf("ParseDeviceInfo(short) = %+v, want zero value", info)
	}
}
