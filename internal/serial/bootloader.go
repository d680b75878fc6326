package serial

import "time"

// controlLines is the subset of a port needed to force ISP entry.
type controlLines interface {
	SetDTR(value bool) error
	SetRTS(value bool) error
	Flush() error
}

// Bootloader entry timing
var (
	resetHold   = 1 * time.Millisecond
	ispHold     = 10 * time.Millisecond
	settleDelay = 50 * time.Millisecond
)

// enterBootloader runs the ISP entry sequence:
// 1. RESET and ISP asserted
// 2. RESET released while ISP is still held, the ROM samples ISP
// 3. ISP released, line becomes a plain byte pipe
func enterBootloader(c controlLines) error {
	// Step 1: Assert RESET and ISP
	if err := c.SetRTS(true); err != nil {
		return err
	}
	if err := c.SetDTR(true); err != nil {
		return err
	}
	time.Sleep(resetHold)

	// Step 2: Release RESET
	if err := c.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(ispHold)

	// Step 3: Release ISP
	if err := c.SetDTR(false); err != nil {
		return err
	}

	// Flush any garbage from reset
	time.Sleep(settleDelay)
	return c.Flush()
}
