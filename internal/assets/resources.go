package assets

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/handcam/internal/detector"
)

// Resource names as shown on the status endpoint.
const (
	HandsName       = "hands"
	CameraUtilsName = "camera_utils"
)

// HandsRuntime verifies that the MediaPipe Hands service script and a
// Python interpreter with the mediapipe module are available.
func HandsRuntime(config detector.MediaPipeConfig) Resource {
	return Resource{
		Name: HandsName,
		Load: func(ctx context.Context) error {
			_, python, err := config.Resolve()
			if err != nil {
				return err
			}

			out, err := exec.CommandContext(ctx, python, "-c", "import mediapipe").CombinedOutput()
			if err != nil {
				return fmt.Errorf("import mediapipe: %w: %s", err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

// CameraUtils verifies that the OpenCV build backing gocv is usable.
func CameraUtils() Resource {
	return Resource{
		Name: CameraUtilsName,
		Load: func(ctx context.Context) error {
			if gocv.OpenCVVersion() == "" {
				return errors.New("opencv runtime not available")
			}
			return nil
		},
	}
}

// Static returns a Resource whose Load returns err. It is useful for tests
// and for disabling a resource from configuration.
func Static(name string, err error) Resource {
	return Resource{
		Name: name,
		Load: func(context.Context) error { return err },
	}
}
