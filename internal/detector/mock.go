package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockCapability is a test implementation of the Capability interface.
// It allows tests to control detection results and timing.
type MockCapability struct {
	mu           sync.Mutex
	hands        []Hand
	err          error
	configureErr error
	gate         chan struct{}
	configured   []Options
	processed    int
	closed       int
}

// NewMockCapability creates a new MockCapability instance.
func NewMockCapability() *MockCapability {
	return &MockCapability{}
}

// SetHands sets the hands that will be returned by Process.
func (m *MockCapability) SetHands(hands []Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Process.
func (m *MockCapability) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetConfigureError makes Configure fail with err.
func (m *MockCapability) SetConfigureError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configureErr = err
}

// Hold makes subsequent Process calls block until Release is called.
func (m *MockCapability) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Release unblocks Process calls waiting on Hold.
func (m *MockCapability) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Configure records the options or returns the configured error.
func (m *MockCapability) Configure(opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configureErr != nil {
		return m.configureErr
	}
	m.configured = append(m.configured, opts)
	return nil
}

// Process returns the pre-configured hands or error.
func (m *MockCapability) Process(ctx context.Context, frame *gocv.Mat) ([]Hand, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close counts close calls.
func (m *MockCapability) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Configured returns the options passed to every successful Configure call.
func (m *MockCapability) Configured() []Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Options(nil), m.configured...)
}

// Processed returns the number of completed Process calls.
func (m *MockCapability) Processed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

// Closed returns the number of Close calls.
func (m *MockCapability) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// OpenPalm returns a right hand with all fingers extended.
func OpenPalm() Hand {
	points := [NumLandmarks]Landmark{
		Wrist:    {X: 0.5, Y: 0.8},
		ThumbCMC: {X: 0.55, Y: 0.75, Z: 0.02},
		ThumbMCP: {X: 0.62, Y: 0.70, Z: 0.03},
		ThumbIP:  {X: 0.68, Y: 0.65, Z: 0.03},
		ThumbTip: {X: 0.73, Y: 0.60, Z: 0.03},

		IndexMCP: {X: 0.55, Y: 0.68},
		IndexPIP: {X: 0.57, Y: 0.55},
		IndexDIP: {X: 0.58, Y: 0.45},
		IndexTip: {X: 0.58, Y: 0.35},

		MiddleMCP: {X: 0.50, Y: 0.66},
		MiddlePIP: {X: 0.50, Y: 0.52},
		MiddleDIP: {X: 0.50, Y: 0.40},
		MiddleTip: {X: 0.50, Y: 0.28},

		RingMCP: {X: 0.45, Y: 0.68},
		RingPIP: {X: 0.43, Y: 0.55},
		RingDIP: {X: 0.42, Y: 0.45},
		RingTip: {X: 0.42, Y: 0.35},

		PinkyMCP: {X: 0.40, Y: 0.70},
		PinkyPIP: {X: 0.37, Y: 0.60},
		PinkyDIP: {X: 0.35, Y: 0.50},
		PinkyTip: {X: 0.34, Y: 0.42},
	}
	return Hand{Landmarks: points[:], Handedness: "Right", Score: 0.95}
}

// ThumbsUp returns a right hand with the thumb extended upward and the other
// fingers curled.
func ThumbsUp() Hand {
	points := [NumLandmarks]Landmark{
		Wrist:    {X: 0.5, Y: 0.8},
		ThumbCMC: {X: 0.55, Y: 0.75},
		ThumbMCP: {X: 0.58, Y: 0.65},
		ThumbIP:  {X: 0.58, Y: 0.50},
		ThumbTip: {X: 0.58, Y: 0.35},

		IndexMCP: {X: 0.55, Y: 0.70, Z: -0.02},
		IndexPIP: {X: 0.55, Y: 0.68, Z: -0.05},
		IndexDIP: {X: 0.52, Y: 0.70, Z: -0.04},
		IndexTip: {X: 0.50, Y: 0.72, Z: -0.02},

		MiddleMCP: {X: 0.50, Y: 0.68, Z: -0.02},
		MiddlePIP: {X: 0.50, Y: 0.66, Z: -0.05},
		MiddleDIP: {X: 0.47, Y: 0.68, Z: -0.04},
		MiddleTip: {X: 0.45, Y: 0.70, Z: -0.02},

		RingMCP: {X: 0.45, Y: 0.70, Z: -0.02},
		RingPIP: {X: 0.45, Y: 0.68, Z: -0.05},
		RingDIP: {X: 0.42, Y: 0.70, Z: -0.04},
		RingTip: {X: 0.40, Y: 0.72, Z: -0.02},

		PinkyMCP: {X: 0.40, Y: 0.72, Z: -0.02},
		PinkyPIP: {X: 0.40, Y: 0.70, Z: -0.05},
		PinkyDIP: {X: 0.37, Y: 0.72, Z: -0.04},
		PinkyTip: {X: 0.35, Y: 0.74, Z: -0.02},
	}
	return Hand{Landmarks: points[:], Handedness: "Right", Score: 0.95}
}
