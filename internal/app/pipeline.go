package app

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/handcam/internal/detector"
)

// Snapshot is one rendered overlay frame. A Snapshot with an empty Session
// and no JPEG signals that the video source was detached.
type Snapshot struct {
	Session    string                `json:"session"`
	JPEG       []byte                `json:"-"`
	Hands      [][]detector.Landmark `json:"hands"`
	Handedness []string              `json:"handedness,omitempty"`
	Timestamp  int64                 `json:"timestamp"`
}

// Detached reports whether the snapshot marks the end of a session.
func (s Snapshot) Detached() bool {
	return s.Session == ""
}

// handleFrame forwards a captured frame to the session's detector. Frames
// from a superseded session are ignored.
func (a *App) handleFrame(session string, adapter *detector.Adapter, frame *gocv.Mat) {
	a.mu.Lock()
	if a.state == Off || a.session != session {
		a.mu.Unlock()
		return
	}
	a.frames++
	if a.state == Initializing && a.device != nil {
		a.state = Running
		a.log.WithField("session", session).Info("first frame received")
	}
	a.mu.Unlock()

	adapter.Submit(frame)
}

// handleResult draws a detection result onto the canvas and publishes it.
// Results that belong to a superseded or closed session are discarded
// without touching the canvas.
func (a *App) handleResult(session string, res detector.Result) {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()

	a.mu.Lock()
	if a.state == Off || a.session != session {
		a.stale++
		a.mu.Unlock()
		a.log.WithField("session", session).Debug("discarding stale result")
		return
	}
	a.mu.Unlock()

	a.overlay.Draw(a.canvas, res)

	jpeg, err := a.canvas.Encode()
	if err != nil {
		a.log.WithError(err).Warn("failed to encode overlay frame")
		return
	}

	snap := Snapshot{
		Session:    session,
		JPEG:       jpeg,
		Hands:      res.MultiHandLandmarks,
		Handedness: res.Handedness,
		Timestamp:  res.Timestamp.UnixMilli(),
	}
	a.latest = &snap

	a.mu.Lock()
	a.rendered++
	a.mu.Unlock()

	a.publish(snap)
}

// detach clears the canvas and tells subscribers the source is gone.
func (a *App) detach() {
	a.renderMu.Lock()
	a.canvas.Clear()
	a.latest = nil
	a.renderMu.Unlock()

	a.publish(Snapshot{})
}

// Latest returns the most recent snapshot of the current session.
func (a *App) Latest() (Snapshot, bool) {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()

	if a.latest == nil {
		return Snapshot{}, false
	}
	return *a.latest, true
}

// Subscribe registers for rendered snapshots. Slow subscribers only see the
// newest snapshot. The returned function unregisters the subscription.
func (a *App) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	a.subMu.Lock()
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		a.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	a.subs[ch] = struct{}{}
	a.subMu.Unlock()

	return ch, func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		if _, ok := a.subs[ch]; ok {
			delete(a.subs, ch)
			close(ch)
		}
	}
}

// publish delivers snap to every subscriber, replacing any snapshot the
// subscriber has not consumed yet.
func (a *App) publish(snap Snapshot) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	for ch := range a.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
