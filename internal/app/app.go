// Package app provides the capture/render controller: it owns the camera and
// hand detector for each activation and renders every detection result.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/handcam/internal/capture"
	"github.com/ayusman/handcam/internal/detector"
	"github.com/ayusman/handcam/internal/render"
)

// ErrClosed is returned by Enable after Close.
var ErrClosed = errors.New("controller closed")

// State is the activation state of the controller.
type State int

const (
	// Off means no camera or detector is held.
	Off State = iota
	// Initializing means the activation started but no frame arrived yet.
	Initializing
	// Running means frames are flowing to the detector.
	Running
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// On reports whether the state is externally visible as "on".
func (s State) On() bool {
	return s != Off
}

// Config holds configuration options for the controller.
type Config struct {
	Width   int
	Height  int
	Options detector.Options
}

// DefaultConfig returns the fixed 640x480 configuration with the default
// detector options.
func DefaultConfig() Config {
	return Config{
		Width:   capture.DefaultWidth,
		Height:  capture.DefaultHeight,
		Options: detector.DefaultOptions(),
	}
}

// Surface is the canvas the controller renders onto.
type Surface interface {
	render.Canvas
	Encode() ([]byte, error)
}

// Deps are the constructors the controller uses for each activation.
type Deps struct {
	// NewDevice returns a capture device. Called once per activation.
	NewDevice func() capture.Device
	// NewCapability returns a fresh hand capability. Called once per activation.
	NewCapability func() (detector.Capability, error)
	// Connections is the skeleton topology drawn between landmarks.
	Connections []detector.Connection
	// Canvas overrides the default Mat-backed canvas.
	Canvas Surface
}

// Status is a snapshot of the controller.
type Status struct {
	State     string         `json:"state"`
	Enabled   bool           `json:"enabled"`
	Session   string         `json:"session,omitempty"`
	Frames    uint64         `json:"frames"`
	Rendered  uint64         `json:"rendered"`
	Stale     uint64         `json:"stale"`
	Detector  detector.Stats `json:"detector"`
	LastError string         `json:"last_error,omitempty"`
}

// App is the capture/render controller.
type App struct {
	config  Config
	deps    Deps
	overlay *render.Overlay
	log     *logrus.Entry

	// opMu serializes activation and deactivation.
	opMu sync.Mutex

	mu       sync.RWMutex
	state    State
	session  string
	device   capture.Device
	adapter  *detector.Adapter
	lastErr  error
	closed   bool
	frames   uint64
	rendered uint64
	stale    uint64

	// renderMu guards the canvas and the latest snapshot. It is acquired
	// before mu when both are needed.
	renderMu sync.Mutex
	canvas   Surface
	latest   *Snapshot

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

// New creates a controller in the Off state.
func New(config Config, deps Deps) *App {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = capture.DefaultWidth, capture.DefaultHeight
	}

	canvas := deps.Canvas
	if canvas == nil {
		canvas = render.NewMatCanvas(config.Width, config.Height)
	}

	return &App{
		config:  config,
		deps:    deps,
		overlay: render.NewOverlay(deps.Connections),
		log:     logrus.WithField("component", "app"),
		state:   Off,
		canvas:  canvas,
		subs:    make(map[chan Snapshot]struct{}),
	}
}

// Enable turns the camera and detector on. It is a no-op unless the
// controller is Off. On failure the controller is left Off and the error
// matches detector.ErrCapabilityUnavailable or capture.ErrDeviceUnavailable.
func (a *App) Enable(ctx context.Context) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.state != Off {
		a.mu.Unlock()
		return nil
	}
	session := uuid.NewString()
	a.state = Initializing
	a.session = session
	a.mu.Unlock()

	log := a.log.WithField("session", session)
	log.Info("activating camera")

	adapter, device, err := a.activate(ctx, session)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.state = Off
		a.session = ""
		a.lastErr = err
		log.WithError(err).Warn("activation failed")
		return err
	}

	a.adapter = adapter
	a.device = device
	a.lastErr = nil
	return nil
}

// activate configures a fresh detector and then starts the capture device.
// Nothing is left allocated when it fails.
func (a *App) activate(ctx context.Context, session string) (*detector.Adapter, capture.Device, error) {
	if a.deps.NewCapability == nil || a.deps.NewDevice == nil {
		return nil, nil, &detector.InitializationError{Err: errors.New("no capability constructor")}
	}

	capability, err := a.deps.NewCapability()
	if err != nil {
		return nil, nil, &detector.InitializationError{Err: err}
	}

	adapter := detector.NewAdapter(capability)
	adapter.OnResults(func(res detector.Result) {
		a.handleResult(session, res)
	})
	if err := adapter.Configure(a.config.Options); err != nil {
		adapter.Close()
		return nil, nil, err
	}

	device := a.deps.NewDevice()
	err = device.Start(ctx, func(frame *gocv.Mat) {
		a.handleFrame(session, adapter, frame)
	})
	if err != nil {
		adapter.Close()
		if !errors.Is(err, capture.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
		}
		return nil, nil, err
	}

	return adapter, device, nil
}

// Disable stops the camera and detaches the video source. It is a no-op
// when the controller is already Off.
func (a *App) Disable() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	return a.deactivate()
}

func (a *App) deactivate() error {
	a.mu.Lock()
	if a.state == Off {
		a.mu.Unlock()
		return nil
	}
	device, adapter, session := a.device, a.adapter, a.session
	a.state = Off
	a.session = ""
	a.device = nil
	a.adapter = nil
	a.mu.Unlock()

	var errs []error
	if device != nil {
		if err := device.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop camera: %w", err))
		}
	}
	if adapter != nil {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
	}

	a.detach()

	a.log.WithField("session", session).Info("camera deactivated")
	return errors.Join(errs...)
}

// SetEnabled turns the controller on or off.
func (a *App) SetEnabled(ctx context.Context, enabled bool) error {
	if enabled {
		return a.Enable(ctx)
	}
	return a.Disable()
}

// Toggle flips the activation state and returns whether the controller is
// now on.
func (a *App) Toggle(ctx context.Context) (bool, error) {
	if a.State().On() {
		return false, a.Disable()
	}
	if err := a.Enable(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// State returns the current activation state.
func (a *App) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// IsEnabled returns whether the controller is on.
func (a *App) IsEnabled() bool {
	return a.State().On()
}

// Status returns a snapshot of the controller.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{
		State:    a.state.String(),
		Enabled:  a.state.On(),
		Session:  a.session,
		Frames:   a.frames,
		Rendered: a.rendered,
		Stale:    a.stale,
	}
	if a.adapter != nil {
		st.Detector = a.adapter.Stats()
	}
	if a.lastErr != nil {
		st.LastError = a.lastErr.Error()
	}
	return st
}

// Close tears the controller down. It is safe to call more than once.
func (a *App) Close() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	err := a.deactivate()

	a.mu.Lock()
	alreadyClosed := a.closed
	a.closed = true
	a.mu.Unlock()

	if alreadyClosed {
		return err
	}

	a.subMu.Lock()
	for ch := range a.subs {
		close(ch)
		delete(a.subs, ch)
	}
	a.subMu.Unlock()

	a.renderMu.Lock()
	defer a.renderMu.Unlock()
	if c, ok := a.canvas.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
