// Package detect finds K32W061 targets behind USB serial bridges.
package detect

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"
	"k8s.io/klog"

	"github.com/bigbag/k32w-flasher/internal/isp"
	"github.com/bigbag/k32w-flasher/internal/protocol"
	"github.com/bigbag/k32w-flasher/internal/serial"
)

// USBID identifies a USB serial bridge by vendor and product ID.
type USBID struct {
	VID string
	PID string
}

func (id USBID) String() string {
	return id.VID + ":" + id.PID
}

// ParseUSBID parses "vid:pid" with both parts in hex, e.g. "0403:6015".
func ParseUSBID(s string) (USBID, error) {
	vid, pid, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || !isHex16(vid) || !isHex16(pid) {
		return USBID{}, fmt.Errorf("invalid USB ID %q, want vid:pid", s)
	}
	return USBID{VID: strings.ToLower(vid), PID: strings.ToLower(pid)}, nil
}

// ParseUSBIDs parses every entry of ids.
func ParseUSBIDs(ids []string) ([]USBID, error) {
	out := make([]USBID, 0, len(ids))
	for _, s := range ids {
		id, err := ParseUSBID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func isHex16(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range strings.ToLower(s) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Candidate is a USB serial port whose bridge matched one of the IDs.
type Candidate struct {
	Port         string
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Result represents a detected K32W061 device.
type Result struct {
	Port     string
	ChipID   uint32
	ChipName string
	Version  uint32
}

// Options control how a port is probed.
type Options struct {
	Transport       serial.Kind
	BaudRate        int
	Key             []byte
	EnterBootloader bool
	Timeout         time.Duration
}

// ListDevices returns the USB serial ports whose VID:PID is in ids.
func ListDevices(ids []USBID) ([]Candidate, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	return matchPorts(ports, ids), nil
}

func matchPorts(ports []*enumerator.PortDetails, ids []USBID) []Candidate {
	var out []Candidate
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		for _, id := range ids {
			if strings.EqualFold(p.VID, id.VID) && strings.EqualFold(p.PID, id.PID) {
				out = append(out, candidate(p))
				break
			}
		}
	}
	return out
}

func candidate(p *enumerator.PortDetails) Candidate {
	return Candidate{
		Port:         p.Name,
		VID:          strings.ToLower(p.VID),
		PID:          strings.ToLower(p.PID),
		SerialNumber: p.SerialNumber,
		Product:      p.Product,
	}
}

// DetectDevice probes every matching port and returns the first one that
// answers the ISP handshake.
func DetectDevice(ids []USBID, opts Options) (*Result, error) {
	candidates, err := ListDevices(ids)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no serial ports match %v", ids)
	}

	var lastErr error
	for _, c := range candidates {
		result, err := DetectOnPort(c.Port, opts)
		if err != nil {
			klog.V(1).Infof("probe %s: %v", c.Port, err)
			lastErr = err
			continue
		}
		return result, nil
	}

	return nil, fmt.Errorf("no K32W061 device found (last error: %w)", lastErr)
}

// DetectOnPort opens portName and identifies the device behind it.
func DetectOnPort(portName string, opts Options) (*Result, error) {
	conn, err := serial.OpenConn(opts.Transport, portName, opts.BaudRate)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	conn.SetResponseTimeout(opts.Timeout)

	if opts.EnterBootloader {
		if err := conn.EnterBootloader(); err != nil {
			return nil, fmt.Errorf("failed to enter bootloader: %w", err)
		}
	}

	result, err := identify(isp.New(conn), opts.Key)
	if err != nil {
		return nil, err
	}
	result.Port = portName
	return result, nil
}

// identify unlocks ISP mode and reads the chip identity.
func identify(mcu isp.MCU, key []byte) (*Result, error) {
	if err := mcu.EnableISPMode(key); err != nil {
		return nil, err
	}

	info, err := mcu.DeviceInfo()
	if err != nil {
		return nil, err
	}

	return &Result{
		ChipID:   info.ChipID,
		ChipName: protocol.ChipName(info.ChipID),
		Version:  info.Version,
	}, nil
}

// LookupPort returns the USB identity of portName.
func LookupPort(portName string) (*Candidate, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	return findPort(ports, portName)
}

func findPort(ports []*enumerator.PortDetails, portName string) (*Candidate, error) {
	for _, p := range ports {
		if p == nil || p.Name != portName {
			continue
		}
		if !p.IsUSB {
			return nil, fmt.Errorf("%s is not a USB serial port", portName)
		}
		c := candidate(p)
		return &c, nil
	}
	return nil, fmt.Errorf("port %s not found", portName)
}
