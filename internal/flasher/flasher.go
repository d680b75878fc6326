// Package flasher sequences ISP operations into complete sessions.
package flasher

import (
	"errors"
	"fmt"

	"k8s.io/klog"

	"github.com/bigbag/k32w-flasher/internal/isp"
	"github.com/bigbag/k32w-flasher/internal/protocol"
)

var (
	ErrUnsupportedChip = errors.New("unsupported chip")
	ErrNotErased       = errors.New("memory not blank after erase")
)

// BootloaderEntry forces the target into its ISP bootloader before the
// first frame is sent.
type BootloaderEntry interface {
	EnterBootloader() error
}

// ProgressCallback is called to report flash progress.
type ProgressCallback func(written, total int)

// progressReporter is implemented by MCUs that report per-chunk progress.
type progressReporter interface {
	SetProgressCallback(cb isp.ProgressCallback)
}

// Flasher handles flashing images to K32W061 devices.
type Flasher struct {
	mcu  isp.MCU
	boot BootloaderEntry
}

// New creates a new Flasher. boot may be nil when the target is already
// in ISP mode.
func New(mcu isp.MCU, boot BootloaderEntry) *Flasher {
	return &Flasher{mcu: mcu, boot: boot}
}

// SetProgressCallback sets the progress callback function.
func (f *Flasher) SetProgressCallback(cb ProgressCallback) {
	r, ok := f.mcu.(progressReporter)
	if !ok {
		return
	}
	if cb == nil {
		r.SetProgressCallback(nil)
		return
	}
	r.SetProgressCallback(isp.ProgressCallback(cb))
}

// Connect enters the bootloader, unlocks ISP mode and, when speed is not
// zero, switches both ends to the new line speed.
func (f *Flasher) Connect(key []byte, speed uint32) error {
	if f.boot != nil {
		if err := f.boot.EnterBootloader(); err != nil {
			return fmt.Errorf("failed to enter bootloader: %w", err)
		}
	}

	if err := f.mcu.EnableISPMode(key); err != nil {
		return fmt.Errorf("failed to enable ISP mode: %w", err)
	}

	if speed != 0 {
		if err := f.mcu.SetBaudRate(speed); err != nil {
			return fmt.Errorf("failed to switch baud rate: %w", err)
		}
		klog.V(1).Infof("Switched to %d baud", speed)
	}

	return nil
}

// Info reads the device identity and rejects anything but a K32W061.
func (f *Flasher) Info() (protocol.DeviceInfo, error) {
	info, err := f.mcu.DeviceInfo()
	if err != nil {
		return protocol.DeviceInfo{}, fmt.Errorf("failed to read device info: %w", err)
	}

	if info.ChipID != protocol.ChipIDK32W061 {
		return info, fmt.Errorf("%w: chip ID 0x%08X", ErrUnsupportedChip, info.ChipID)
	}
	return info, nil
}

// Erase wipes memory region id and verifies it reads back blank.
func (f *Flasher) Erase(id protocol.MemoryID) error {
	return f.withMemory(id, func(handle protocol.Handle) error {
		return f.erase(handle)
	})
}

// FlashImage writes data to memory region id, erasing it first when
// erase is set.
func (f *Flasher) FlashImage(id protocol.MemoryID, data []byte, erase bool) error {
	return f.withMemory(id, func(handle protocol.Handle) error {
		if erase {
			if err := f.erase(handle); err != nil {
				return err
			}
		}

		if err := f.mcu.FlashMemory(handle, data); err != nil {
			return fmt.Errorf("failed to flash %s: %w", id, err)
		}
		return nil
	})
}

// Reset restarts the device into the flashed application.
func (f *Flasher) Reset() error {
	if err := f.mcu.Reset(); err != nil {
		return fmt.Errorf("failed to reset device: %w", err)
	}
	return nil
}

// withMemory opens id, runs fn and closes the handle. The session stops at
// the first failure; a failed fn leaves the handle open.
func (f *Flasher) withMemory(id protocol.MemoryID, fn func(protocol.Handle) error) error {
	handle, err := f.mcu.OpenMemory(id)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", id, err)
	}
	klog.V(2).Infof("Opened %s as handle %d", id, handle)

	if err := fn(handle); err != nil {
		return err
	}

	if err := f.mcu.CloseMemory(handle); err != nil {
		return fmt.Errorf("failed to close %s: %w", id, err)
	}
	return nil
}

func (f *Flasher) erase(handle protocol.Handle) error {
	if err := f.mcu.EraseMemory(handle); err != nil {
		return fmt.Errorf("failed to erase memory: %w", err)
	}

	blank, err := f.mcu.MemoryIsErased(handle)
	if err != nil {
		return fmt.Errorf("failed to blank check memory: %w", err)
	}
	if !blank {
		return ErrNotErased
	}
	return nil
}
