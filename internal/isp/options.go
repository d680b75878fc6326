package isp

import "github.com/bigbag/k32w-flasher/internal/protocol"

// DefaultReadRetries is the number of extra reads allowed to complete a
// response that arrived split across transport reads.
const DefaultReadRetries = 1

// MaxChunkSize keeps a write frame within the 16-bit size field.
const MaxChunkSize = protocol.MaxFrameSize - protocol.MinFrameSize - 10

// Option is a functional option for configuring the Device.
type Option func(*Device)

// WithChunkSize sets the maximum image slice per write frame.
// Values outside 1..MaxChunkSize are ignored.
func WithChunkSize(size int) Option {
	return func(d *Device) {
		if size > 0 && size <= MaxChunkSize {
			d.chunkSize = size
		}
	}
}

// WithRegionSize sets the length used by erase and blank check.
func WithRegionSize(size uint32) Option {
	return func(d *Device) {
		if size > 0 {
			d.regionSize = size
		}
	}
}

// WithReadRetries sets how many extra reads may complete a short response.
func WithReadRetries(retries int) Option {
	return func(d *Device) {
		if retries >= 0 {
			d.readRetries = retries
		}
	}
}

// WithProgressCallback sets a callback reporting write progress.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(d *Device) {
		d.progress = cb
	}
}
