// Package testdata builds synthetic camera frames for tests.
package testdata

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Frame size used by the fixtures.
const (
	Width  = 640
	Height = 480
)

// SolidFrame returns a BGR frame of the given size filled with c. The caller
// must Close it.
func SolidFrame(width, height int, c color.RGBA) *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		height, width, gocv.MatTypeCV8UC3,
	)
	return &mat
}

// Sequence returns n full-size frames of increasing brightness.
func Sequence(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		v := uint8((i * 255) / max(n, 1))
		frames = append(frames, SolidFrame(Width, Height, color.RGBA{R: v, G: v, B: v, A: 255}))
	}
	return frames
}

// CloseAll releases frames returned by Sequence.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
