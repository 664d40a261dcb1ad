package capture

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockDevice plays back pre-recorded frames for testing. Frames are only
// delivered when Emit is called, which keeps tests deterministic.
type MockDevice struct {
	mu       sync.Mutex
	frames   []*gocv.Mat
	index    int
	onFrame  FrameFunc
	running  bool
	startErr error
	starts   int
	stops    int

	// emitMu serializes deliveries and lets Stop wait for one in progress.
	emitMu sync.Mutex
}

// NewMockDevice creates a MockDevice that loops over frames.
func NewMockDevice(frames ...*gocv.Mat) *MockDevice {
	return &MockDevice{frames: frames}
}

// SetStartError makes the next Start calls fail with err.
func (d *MockDevice) SetStartError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startErr = err
}

// Start records the callback and marks the device running.
func (d *MockDevice) Start(ctx context.Context, onFrame FrameFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.starts++
	if d.startErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, d.startErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.onFrame = onFrame
	d.running = true
	d.index = 0
	return nil
}

// Stop marks the device stopped and waits for an in-progress Emit.
func (d *MockDevice) Stop() error {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.running = false
	d.onFrame = nil
	return nil
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (d *MockDevice) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Emit delivers the next frame to the callback. It returns false when the
// device is stopped or has no frames.
func (d *MockDevice) Emit() bool {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if !d.running || len(d.frames) == 0 {
		d.mu.Unlock()
		return false
	}
	frame := d.frames[d.index%len(d.frames)]
	d.index++
	onFrame := d.onFrame
	d.mu.Unlock()

	// Clone the frame so the original isn't modified
	clone := frame.Clone()
	defer clone.Close()
	onFrame(&clone)
	return true
}

// EmitN delivers up to n frames and returns how many were delivered.
func (d *MockDevice) EmitN(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		if !d.Emit() {
			break
		}
		delivered++
	}
	return delivered
}

// Starts returns the number of Start calls.
func (d *MockDevice) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// Stops returns the number of Stop calls.
func (d *MockDevice) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}
