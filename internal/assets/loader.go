// Package assets loads the external resources the hand tracker depends on
// before the camera toggle is offered.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the overall loading state.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Default retry policy.
const (
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond
)

// Resource is one external dependency that must be initialized.
type Resource struct {
	Name string
	Load func(ctx context.Context) error
}

// ResourceStatus reports the outcome of loading one resource.
type ResourceStatus struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Status is a snapshot of the loader.
type Status struct {
	State     State            `json:"state"`
	Resources []ResourceStatus `json:"resources"`
	Error     string           `json:"error,omitempty"`
}

// Config holds the retry policy. Retries is the number of attempts per
// resource; Backoff is the delay before the second attempt and doubles for
// each subsequent one.
type Config struct {
	Retries int
	Backoff time.Duration
}

// Loader initializes a fixed set of resources once. A resource that still
// fails after all retries leaves the loader permanently failed.
type Loader struct {
	config    Config
	resources []Resource
	log       *logrus.Entry

	mu       sync.RWMutex
	statuses []ResourceStatus
	state    State
	err      error
	done     chan struct{}
	once     sync.Once
}

// NewLoader creates a loader for the given resources.
func NewLoader(config Config, resources ...Resource) *Loader {
	if config.Retries <= 0 {
		config.Retries = DefaultRetries
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultBackoff
	}

	statuses := make([]ResourceStatus, len(resources))
	for i, r := range resources {
		statuses[i] = ResourceStatus{Name: r.Name, State: StateLoading}
	}

	return &Loader{
		config:    config,
		resources: resources,
		log:       logrus.WithField("component", "assets"),
		statuses:  statuses,
		state:     StateLoading,
		done:      make(chan struct{}),
	}
}

// Run loads every resource concurrently and blocks until all have settled.
// Subsequent calls return the first outcome.
func (l *Loader) Run(ctx context.Context) error {
	l.once.Do(func() {
		var wg sync.WaitGroup
		errs := make([]error, len(l.resources))

		for i := range l.resources {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = l.load(ctx, i)
			}(i)
		}
		wg.Wait()

		err := errors.Join(errs...)

		l.mu.Lock()
		if err != nil {
			l.state = StateFailed
			l.err = err
		} else {
			l.state = StateReady
		}
		l.mu.Unlock()
		close(l.done)

		if err != nil {
			l.log.WithError(err).Error("external resources failed to load")
		} else {
			l.log.Info("external resources ready")
		}
	})

	return l.Err()
}

func (l *Loader) load(ctx context.Context, i int) error {
	r := l.resources[i]
	log := l.log.WithField("resource", r.Name)
	backoff := l.config.Backoff

	var err error
	for attempt := 1; attempt <= l.config.Retries; attempt++ {
		err = r.Load(ctx)
		l.setStatus(i, attempt, err, attempt == l.config.Retries)
		if err == nil {
			log.WithField("attempts", attempt).Debug("resource loaded")
			return nil
		}

		log.WithError(err).WithField("attempt", attempt).Warn("resource load failed")
		if attempt == l.config.Retries {
			break
		}

		select {
		case <-ctx.Done():
			l.setStatus(i, attempt, ctx.Err(), true)
			return fmt.Errorf("%s: %w", r.Name, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%s: %w", r.Name, err)
}

func (l *Loader) setStatus(i, attempt int, err error, final bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &l.statuses[i]
	s.Attempts = attempt
	switch {
	case err == nil:
		s.State = StateReady
		s.Error = ""
	case final:
		s.State = StateFailed
		s.Error = err.Error()
	default:
		s.Error = err.Error()
	}
}

// Ready reports whether every resource loaded.
func (l *Loader) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateReady
}

// Err returns the loading error once the loader has failed.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Done is closed when loading has settled, successfully or not.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Status returns a snapshot of the loader state.
func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Status{
		State:     l.state,
		Resources: append([]ResourceStatus(nil), l.statuses...),
	}
	if l.err != nil {
		st.Error = l.err.Error()
	}
	return st
}
