package tray

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/handcam/internal/app"
)

type fakeCheckbox struct{ checked bool }

func (f *fakeCheckbox) Checked() bool { return f.checked }
func (f *fakeCheckbox) Check()        { f.checked = true }
func (f *fakeCheckbox) Uncheck()      { f.checked = false }

type fakeLabel struct {
	mu    sync.Mutex
	title string
}

func (f *fakeLabel) SetTitle(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
}

func (f *fakeLabel) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

// fakeController records toggles and lets tests publish snapshots.
type fakeController struct {
	mu      sync.Mutex
	state   app.State
	err     error
	toggles int
	snaps   chan app.Snapshot
}

func newFakeController() *fakeController {
	return &fakeController{snaps: make(chan app.Snapshot, 1)}
}

func (f *fakeController) Toggle(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	if f.err != nil {
		return false, f.err
	}
	if f.state.On() {
		f.state = app.Off
	} else {
		f.state = app.Initializing
	}
	return f.state.On(), nil
}

func (f *fakeController) IsEnabled() bool { return f.State().On() }

func (f *fakeController) State() app.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Subscribe() (<-chan app.Snapshot, func()) {
	return f.snaps, func() {}
}

func (f *fakeController) set(state app.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func (f *fakeController) toggleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggles
}

func newTestTray() (*Tray, *fakeCheckbox, *fakeLabel) {
	tr := New()
	box, status := &fakeCheckbox{}, &fakeLabel{}
	tr.menuToggle = box
	tr.menuStatus = status
	return tr, box, status
}

func TestTray_Toggle(t *testing.T) {
	t.Run("checks and unchecks", func(t *testing.T) {
		tr, box, _ := newTestTray()
		var calls []bool
		tr.OnToggle(func(enabled bool) error {
			calls = append(calls, enabled)
			return nil
		})

		tr.handleToggle()
		assert.True(t, box.checked)
		assert.True(t, tr.IsEnabled())

		tr.handleToggle()
		assert.False(t, box.checked)
		assert.Equal(t, []bool{true, false}, calls)
	})

	t.Run("failed activation unchecks", func(t *testing.T) {
		tr, box, status := newTestTray()
		tr.OnToggle(func(bool) error { return errors.New("permission denied") })

		tr.handleToggle()

		assert.False(t, box.checked)
		assert.False(t, tr.IsEnabled())
		assert.Equal(t, "Camera: error", status.Title())
	})

	t.Run("no menu yet", func(t *testing.T) {
		tr := New()
		called := false
		tr.OnToggle(func(bool) error { called = true; return nil })

		tr.handleToggle()

		assert.False(t, called)
		assert.False(t, tr.IsEnabled())
	})
}

func TestTray_Open(t *testing.T) {
	tr, _, _ := newTestTray()
	opened := 0
	tr.OnOpen(func() { opened++ })

	tr.handleOpen()

	assert.Equal(t, 1, opened)
}

func TestTray_SetStatus(t *testing.T) {
	tr, _, status := newTestTray()

	tr.SetStatus("running")

	assert.Equal(t, "Camera: running", status.Title())
}

func TestTray_Bind(t *testing.T) {
	t.Run("click toggles the controller", func(t *testing.T) {
		tr, box, status := newTestTray()
		ctrl := newFakeController()
		tr.Bind(t.Context(), ctrl, nil)

		tr.handleToggle()
		assert.Equal(t, 1, ctrl.toggleCount())
		assert.True(t, box.checked)
		assert.Equal(t, "Camera: initializing", status.Title())

		tr.handleToggle()
		assert.Equal(t, 2, ctrl.toggleCount())
		assert.False(t, box.checked)
		assert.Equal(t, "Camera: off", status.Title())
	})

	t.Run("runtime not ready", func(t *testing.T) {
		tr, box, status := newTestTray()
		ctrl := newFakeController()
		tr.Bind(t.Context(), ctrl, func() bool { return false })

		tr.handleToggle()

		assert.Zero(t, ctrl.toggleCount())
		assert.False(t, box.checked)
		assert.Equal(t, "Camera: error", status.Title())
	})

	t.Run("failed activation", func(t *testing.T) {
		tr, box, _ := newTestTray()
		ctrl := newFakeController()
		ctrl.err = errors.New("permission denied")
		tr.Bind(t.Context(), ctrl, nil)

		tr.handleToggle()

		assert.Equal(t, 1, ctrl.toggleCount())
		assert.False(t, box.checked)
	})

	t.Run("stale checkbox resyncs without toggling", func(t *testing.T) {
		tr, box, status := newTestTray()
		ctrl := newFakeController()
		ctrl.set(app.Running)
		tr.Bind(t.Context(), ctrl, nil)

		tr.handleToggle()

		assert.Zero(t, ctrl.toggleCount())
		assert.True(t, box.checked)
		assert.Equal(t, "Camera: running", status.Title())
	})
}

func TestTray_Follow(t *testing.T) {
	tr, _, status := newTestTray()
	ctrl := newFakeController()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Follow(ctx, ctrl)
	}()

	require.Eventually(t, func() bool { return status.Title() == "Camera: off" }, 2*time.Second, 10*time.Millisecond)

	ctrl.set(app.Running)
	ctrl.snaps <- app.Snapshot{Session: "session-1"}
	require.Eventually(t, func() bool {
		return tr.IsEnabled() && status.Title() == "Camera: running"
	}, 2*time.Second, 10*time.Millisecond)

	ctrl.set(app.Off)
	ctrl.snaps <- app.Snapshot{}
	require.Eventually(t, func() bool {
		return !tr.IsEnabled() && status.Title() == "Camera: off"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
