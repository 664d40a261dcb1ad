// Package tray provides a system tray interface with a camera toggle.
package tray

import (
	"context"
	"errors"
	"sync"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/handcam/internal/app"
)

// ErrNotReady is returned by a bound toggle while the hand runtime is still
// loading.
var ErrNotReady = errors.New("hand tracking runtime not ready")

// Controller is the part of the capture/render controller the tray drives.
type Controller interface {
	Toggle(ctx context.Context) (bool, error)
	IsEnabled() bool
	State() app.State
	Subscribe() (<-chan app.Snapshot, func())
}

// checkbox is the part of a menu item the toggle logic needs.
type checkbox interface {
	Checked() bool
	Check()
	Uncheck()
}

// label is a menu item whose title can change.
type label interface {
	SetTitle(title string)
}

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool) error
	onOpen   func()
	onQuit   func()
	mu       sync.RWMutex
	log      *logrus.Entry

	// Menu items stored for later updates
	menuToggle checkbox
	menuStatus label
}

// New creates a new Tray with the camera toggle unchecked.
func New() *Tray {
	return &Tray{log: logrus.WithField("component", "tray")}
}

// OnToggle sets the callback invoked when the camera checkbox is clicked.
// When it returns an error the checkbox is unchecked again.
func (t *Tray) OnToggle(fn func(enabled bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback invoked by the "Open Page" item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray loop started by Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("handcam")
	systray.SetTooltip("Hand Tracking Example")

	toggle := systray.AddMenuItemCheckbox("Toggle Camera", "Turn the camera and hand tracking on or off", false)
	status := systray.AddMenuItem("Camera: off", "Camera state")
	status.Disable()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Page", "Open the overlay page in the browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit handcam")

	t.mu.Lock()
	t.menuToggle = toggle
	t.menuStatus = status
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-toggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle flips the checkbox and asks the callback to follow. A failed
// activation leaves the checkbox unchecked.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	item := t.menuToggle
	callback := t.onToggle
	if item == nil {
		t.mu.Unlock()
		return
	}
	enabled := !item.Checked()
	if enabled {
		item.Check()
	} else {
		item.Uncheck()
	}
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback == nil {
		return
	}
	if err := callback(enabled); err != nil {
		t.log.WithError(err).Warn("camera toggle failed")
		t.mu.Lock()
		item.Uncheck()
		t.mu.Unlock()
		t.SetStatus("error")
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus updates the camera state line in the menu.
func (t *Tray) SetStatus(state string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus != nil {
		t.menuStatus.SetTitle("Camera: " + state)
	}
}

// Sync sets the checkbox and status line from the controller state.
func (t *Tray) Sync(state app.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.menuToggle != nil {
		if state.On() {
			t.menuToggle.Check()
		} else {
			t.menuToggle.Uncheck()
		}
	}
	if t.menuStatus != nil {
		t.menuStatus.SetTitle("Camera: " + state.String())
	}
}

// Bind makes the checkbox toggle ctrl. ready gates activation on the hand
// runtime; a nil ready means always ready.
func (t *Tray) Bind(ctx context.Context, ctrl Controller, ready func() bool) {
	t.OnToggle(func(enabled bool) error {
		if enabled == ctrl.IsEnabled() {
			t.Sync(ctrl.State())
			return nil
		}
		if enabled && ready != nil && !ready() {
			return ErrNotReady
		}
		_, err := ctrl.Toggle(ctx)
		if err != nil {
			return err
		}
		t.Sync(ctrl.State())
		return nil
	})
}

// Follow keeps the menu in step with ctrl until ctx is done or the
// controller closes, so changes made elsewhere show up in the tray.
func (t *Tray) Follow(ctx context.Context, ctrl Controller) {
	snaps, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	last := ctrl.State()
	t.Sync(last)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-snaps:
			if !ok {
				return
			}
			if state := ctrl.State(); state != last {
				last = state
				t.Sync(state)
			}
		}
	}
}

// IsEnabled returns whether the camera checkbox is checked.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.menuToggle != nil && t.menuToggle.Checked()
}
