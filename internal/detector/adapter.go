package detector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultInferenceTimeout bounds a single Process call. A capability that
// does not answer in time is counted as an error and the slot is freed.
const DefaultInferenceTimeout = 5 * time.Second

// Stats counts what happened to submitted frames.
type Stats struct {
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
	Rejected  uint64 `json:"rejected"` // hands discarded at the boundary
}

// Adapter drives a Capability for one activation. It owns a single inference
// slot: frames submitted while an inference is in flight are dropped, so
// results are always delivered in submission order.
type Adapter struct {
	capability Capability
	timeout    time.Duration
	log        *logrus.Entry

	mu         sync.Mutex
	opts       Options
	onResults  func(Result)
	configured bool
	closed     bool
	capClosed  bool
	busy       bool
	stats      Stats
	wg         sync.WaitGroup
}

// NewAdapter wraps a freshly constructed capability.
func NewAdapter(c Capability) *Adapter {
	return &Adapter{
		capability: c,
		timeout:    DefaultInferenceTimeout,
		log:        logrus.WithField("component", "detector"),
	}
}

// Configure validates opts and configures the capability. It must be called
// exactly once before any frame is submitted.
func (a *Adapter) Configure(opts Options) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return &InitializationError{Err: errors.New("adapter closed")}
	}
	if a.configured {
		return ErrAlreadyConfigured
	}
	if err := opts.Validate(); err != nil {
		return &InitializationError{Err: err}
	}
	if err := a.capability.Configure(opts); err != nil {
		return &InitializationError{Err: err}
	}

	a.opts = opts
	a.configured = true
	a.log.WithField("options", opts).Debug("hand capability configured")
	return nil
}

// OnResults registers the callback invoked once per processed frame.
func (a *Adapter) OnResults(fn func(Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onResults = fn
}

// Submit hands a frame to the capability without waiting for inference.
// The frame is cloned, so the caller keeps ownership of it. Submit returns
// false when the frame was not accepted.
func (a *Adapter) Submit(frame *gocv.Mat) bool {
	if frame == nil || frame.Empty() {
		return false
	}

	a.mu.Lock()
	if !a.configured || a.closed {
		a.mu.Unlock()
		return false
	}
	if a.busy {
		a.stats.Dropped++
		a.mu.Unlock()
		return false
	}
	a.busy = true
	callback := a.onResults
	a.wg.Add(1)
	a.mu.Unlock()

	img := frame.Clone()
	go a.process(img, callback)
	return true
}

func (a *Adapter) process(img gocv.Mat, callback func(Result)) {
	defer a.wg.Done()
	defer img.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	hands, err := a.capability.Process(ctx, &img)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			a.log.WithField("timeout", a.timeout).Warn("hand detection timed out")
		} else {
			a.log.WithError(err).Warn("hand detection failed")
		}
		a.mu.Lock()
		a.stats.Errors++
		a.finish()
		return
	}

	res := a.buildResult(&img, hands)
	if callback != nil {
		callback(res)
	}

	a.mu.Lock()
	a.stats.Processed++
	a.finish()
}

// finish releases the inference slot. It must be called with a.mu held and
// unlocks it.
func (a *Adapter) finish() {
	a.busy = false
	closeCapability := a.closed && !a.capClosed
	if closeCapability {
		a.capClosed = true
	}
	a.mu.Unlock()

	if closeCapability {
		if err := a.capability.Close(); err != nil {
			a.log.WithError(err).Warn("close hand capability")
		}
	}
}

// buildResult validates raw hands at the adapter boundary.
func (a *Adapter) buildResult(img *gocv.Mat, hands []Hand) Result {
	res := Result{
		Image:     img,
		Timestamp: time.Now(),
	}

	a.mu.Lock()
	limit := a.opts.MaxNumHands
	a.mu.Unlock()

	for _, h := range hands {
		if !h.Valid() {
			a.mu.Lock()
			a.stats.Rejected++
			a.mu.Unlock()
			continue
		}
		if len(res.MultiHandLandmarks) >= limit {
			break
		}
		res.MultiHandLandmarks = append(res.MultiHandLandmarks, h.Landmarks)
		res.Handedness = append(res.Handedness, h.Handedness)
	}
	return res
}

// inFlight reports whether an inference is in flight.
func (a *Adapter) inFlight() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Stats returns a copy of the frame counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// wait blocks until no inference is in flight.
func (a *Adapter) wait() {
	a.wg.Wait()
}

// Close refuses further submissions. An in-flight inference is not
// cancelled; the capability is closed once it completes or times out.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	if a.busy {
		a.mu.Unlock()
		return nil
	}
	a.capClosed = true
	a.mu.Unlock()

	return a.capability.Close()
}
