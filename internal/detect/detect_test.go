package detect

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial/enumerator"

	"github.com/bigbag/k32w-flasher/internal/protocol"
)

func TestParseUSBID(t *testing.T) {
	tests := []struct {
		input   string
		want    USBID
		wantErr bool
	}{
		{"0403:6015", USBID{"0403", "6015"}, false},
		{"0403:6015 ", USBID{"0403", "6015"}, false},
		{"10C4:EA60", USBID{"10c4", "ea60"}, false},
		{"0403", USBID{}, true},
		{"0403:60150", USBID{}, true},
		{"04g3:6015", USBID{}, true},
		{"", USBID{}, true},
	}

	for _, tt := range tests {
		got, err := ParseUSBID(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseUSBID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseUSBID(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseUSBIDs(t *testing.T) {
	got, err := ParseUSBIDs([]string{"0403:6015", "0403:6001"})
	if err != nil {
		t.Fatalf("ParseUSBIDs() error = %v", err)
	}
	want := []USBID{{"0403", "6015"}, {"0403", "6001"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseUSBIDs() = %v, want %v", got, want)
	}

	if _, err := ParseUSBIDs([]string{"0403:6015", "bogus"}); err == nil {
		t.Error("ParseUSBIDs() error = nil, want error")
	}
}

func TestMatchPorts(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6015", SerialNumber: "DN04ABCD", Product: "FT230X Basic UART"},
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "10c4", PID: "ea60"},
		{Name: "COM7", IsUSB: true, VID: "0403", PID: "6001"},
		nil,
	}
	ids := []USBID{{"0403", "6015"}, {"0403", "6001"}}

	got := matchPorts(ports, ids)
	want := []Candidate{
		{Port: "/dev/ttyUSB0", VID: "0403", PID: "6015", SerialNumber: "DN04ABCD", Product: "FT230X Basic UART"},
		{Port: "COM7", VID: "0403", PID: "6001"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("matchPorts() mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchPorts_CaseInsensitive(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "COM3", IsUSB: true, VID: "10C4", PID: "EA60"},
	}

	got := matchPorts(ports, []USBID{{"10c4", "ea60"}})
	if len(got) != 1 || got[0].Port != "COM3" {
		t.Errorf("matchPorts() = %+v, want COM3", got)
	}
}

type fakeMCU struct {
	enableErr error
	info      protocol.DeviceInfo
	infoErr   error
	key       []byte
}

func (f *fakeMCU) EnableISPMode(key []byte) error {
	f.key = key
	return f.enableErr
}

func (f *fakeMCU) DeviceInfo() (protocol.DeviceInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeMCU) OpenMemory(protocol.MemoryID) (protocol.Handle, error) { return 0, nil }
func (f *fakeMCU) EraseMemory(protocol.Handle) error                     { return nil }
func (f *fakeMCU) MemoryIsErased(protocol.Handle) (bool, error)          { return true, nil }
func (f *fakeMCU) FlashMemory(protocol.Handle, []byte) error             { return nil }
func (f *fakeMCU) CloseMemory(protocol.Handle) error                     { return nil }
func (f *fakeMCU) Reset() error                                          { return nil }
func (f *fakeMCU) SetBaudRate(uint32) error                              { return nil }

func TestIdentify(t *testing.T) {
	mcu := &fakeMCU{info: protocol.DeviceInfo{ChipID: protocol.ChipIDK32W061, Version: 0x00010203}}

	got, err := identify(mcu, protocol.DefaultUnlockKey)
	if err != nil {
		t.Fatalf("identify() error = %v", err)
	}

	want := &Result{ChipID: protocol.ChipIDK32W061, ChipName: "K32W061", Version: 0x00010203}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("identify() = %+v, want %+v", got, want)
	}
	if !reflect.DeepEqual(mcu.key, protocol.DefaultUnlockKey) {
		t.Errorf("EnableISPMode() key = % X, want % X", mcu.key, protocol.DefaultUnlockKey)
	}
}

func TestIdentify_Errors(t *testing.T) {
	errLink := errors.New("link down")

	if _, err := identify(&fakeMCU{enableErr: errLink}, nil); !errors.Is(err, errLink) {
		t.Errorf("identify() error = %v, want %v", err, errLink)
	}
	if _, err := identify(&fakeMCU{infoErr: errLink}, nil); !errors.Is(err, errLink) {
		t.Errorf("identify() error = %v, want %v", err, errLink)
	}
}

func TestFindPort(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6015"},
	}

	got, err := findPort(ports, "/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("findPort() error = %v", err)
	}
	if got.VID != "0403" || got.PID != "6015" {
		t.Errorf("findPort() = %s:%s, want 0403:6015", got.VID, got.PID)
	}

	if _, err := findPort(ports, "/dev/ttyS0"); err == nil {
		t.Error("findPort(non-USB) error = nil, want error")
	}
	if _, err := findPort(ports, "/dev/ttyACM0"); err == nil {
		t.Error("findPort(missing) error = nil, want error")
	}
}
