package detector

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrCapabilityUnavailable is matched by every initialization failure.
var ErrCapabilityUnavailable = errors.New("hand capability unavailable")

// ErrAlreadyConfigured is returned when Configure is called twice on the same adapter.
var ErrAlreadyConfigured = errors.New("detector already configured")

// Capability is the external hand-landmark estimator. Implementations are
// not shared between activations.
type Capability interface {
	// Configure prepares the capability with the given options. It is called
	// once before the first Process call.
	Configure(opts Options) error

	// Process runs inference on one frame. An empty slice means no hand.
	Process(ctx context.Context, frame *gocv.Mat) ([]Hand, error)

	// Close releases any resources held by the capability.
	Close() error
}

// Options holds configuration options for hand detection.
type Options struct {
	// MaxNumHands is the maximum number of hands to report.
	MaxNumHands int `json:"maxNumHands"`

	// ModelComplexity selects the landmark model: 0 (lite) or 1 (full).
	ModelComplexity int `json:"modelComplexity"`

	// MinDetectionConfidence is the palm detection threshold (0.0-1.0).
	MinDetectionConfidence float64 `json:"minDetectionConfidence"`

	// MinTrackingConfidence is the landmark tracking threshold (0.0-1.0).
	MinTrackingConfidence float64 `json:"minTrackingConfidence"`
}

// DefaultOptions returns the fixed options used for every activation.
func DefaultOptions() Options {
	return Options{
		MaxNumHands:            1,
		ModelComplexity:        1,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
	}
}

// Validate checks that all options are within range.
func (o Options) Validate() error {
	if o.MaxNumHands < 1 {
		return fmt.Errorf("maxNumHands must be at least 1, got %d", o.MaxNumHands)
	}
	if o.ModelComplexity != 0 && o.ModelComplexity != 1 {
		return fmt.Errorf("modelComplexity must be 0 or 1, got %d", o.ModelComplexity)
	}
	if o.MinDetectionConfidence < 0 || o.MinDetectionConfidence > 1 {
		return fmt.Errorf("minDetectionConfidence must be between 0 and 1, got %f", o.MinDetectionConfidence)
	}
	if o.MinTrackingConfidence < 0 || o.MinTrackingConfidence > 1 {
		return fmt.Errorf("minTrackingConfidence must be between 0 and 1, got %f", o.MinTrackingConfidence)
	}
	return nil
}

// InitializationError reports that the capability could not be constructed
// or configured.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize hand capability: %v", e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// Is makes every InitializationError match ErrCapabilityUnavailable.
func (e *InitializationError) Is(target error) bool {
	return target == ErrCapabilityUnavailable
}
