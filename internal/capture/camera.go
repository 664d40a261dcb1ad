// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrDeviceUnavailable is returned when the capture device cannot be opened,
// for example because access was denied or no camera is attached.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// FrameFunc receives each captured frame. The Mat is only valid for the
// duration of the call.
type FrameFunc func(frame *gocv.Mat)

// Device delivers frames from a capture source to a callback.
type Device interface {
	// Start acquires the device and begins delivering frames to onFrame in
	// temporal order. It returns once the device is open.
	Start(ctx context.Context, onFrame FrameFunc) error

	// Stop halts frame delivery and releases the device. No callback runs
	// after Stop returns.
	Stop() error

	// IsRunning reports whether frames are being delivered.
	IsRunning() bool
}

// Config holds camera settings.
type Config struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
}

// DefaultConfig returns a Config for device 0 at 640x480.
func DefaultConfig() Config {
	return Config{
		DeviceID: 0,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		FPS:      DefaultFPS,
	}
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	config  Config
	log     *logrus.Entry
	mu      sync.Mutex
	capture *gocv.VideoCapture
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCamera creates a new camera Device. Non-positive settings fall back to
// the defaults.
func NewCamera(config Config) Device {
	if config.Width <= 0 {
		config.Width = DefaultWidth
	}
	if config.Height <= 0 {
		config.Height = DefaultHeight
	}
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	return &cameraImpl{
		config: config,
		log:    logrus.WithFields(logrus.Fields{"component": "camera", "device": config.DeviceID}),
	}
}

// Start opens the camera and starts the frame loop.
func (c *cameraImpl) Start(ctx context.Context, onFrame FrameFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	capture, err := gocv.OpenVideoCapture(c.config.DeviceID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: device %d not opened", ErrDeviceUnavailable, c.config.DeviceID)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.config.FPS))

	c.capture = capture
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go c.run(capture, onFrame, c.stopCh, c.doneCh)

	c.log.WithFields(logrus.Fields{
		"width":  c.config.Width,
		"height": c.config.Height,
		"fps":    c.config.FPS,
	}).Info("camera started")
	return nil
}

// run reads frames until stopCh is closed.
func (c *cameraImpl) run(capture *gocv.VideoCapture, onFrame FrameFunc, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	frame := gocv.NewMat()
	defer frame.Close()

	ticker := time.NewTicker(time.Second / time.Duration(c.config.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if ok := capture.Read(&frame); !ok || frame.Empty() {
				c.log.Debug("failed to read frame from camera")
				continue
			}
			onFrame(&frame)
		}
	}
}

// Stop halts the frame loop and closes the camera.
func (c *cameraImpl) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh == nil {
		return nil
	}

	close(c.stopCh)
	<-c.doneCh

	err := c.capture.Close()
	c.capture = nil
	c.stopCh = nil
	c.doneCh = nil

	c.log.Info("camera stopped")
	return err
}

// IsRunning returns true if the camera is currently open and running.
func (c *cameraImpl) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopCh != nil
}
