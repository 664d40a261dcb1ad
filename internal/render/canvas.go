// Package render draws hand landmark overlays onto a canvas.
package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	// StrokeColor is used for skeleton connections.
	StrokeColor = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	// LandmarkColor fills the landmark dots.
	LandmarkColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// Canvas is a 2D drawing surface.
type Canvas interface {
	Size() (width, height int)
	Clear()
	// DrawImage paints img scaled to the full canvas.
	DrawImage(img gocv.Mat)
	Line(from, to image.Point)
	FillCircle(center image.Point, radius int)
}

// MatCanvas is a Canvas backed by a BGR gocv.Mat.
type MatCanvas struct {
	mat    gocv.Mat
	width  int
	height int
}

// NewMatCanvas allocates a cleared canvas. Call Close to release it.
func NewMatCanvas(width, height int) *MatCanvas {
	return &MatCanvas{
		mat:    gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3),
		width:  width,
		height: height,
	}
}

// Size returns the canvas dimensions in pixels.
func (c *MatCanvas) Size() (int, int) {
	return c.width, c.height
}

// Clear resets every pixel to black.
func (c *MatCanvas) Clear() {
	c.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// DrawImage paints img onto the canvas, resizing when the sizes differ.
func (c *MatCanvas) DrawImage(img gocv.Mat) {
	if img.Empty() {
		return
	}
	if img.Cols() == c.width && img.Rows() == c.height && img.Type() == c.mat.Type() {
		img.CopyTo(&c.mat)
		return
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(c.width, c.height), 0, 0, gocv.InterpolationLinear)

	if resized.Channels() == 1 {
		gocv.CvtColor(resized, &c.mat, gocv.ColorGrayToBGR)
		return
	}
	resized.CopyTo(&c.mat)
}

// Line strokes a 1px segment.
func (c *MatCanvas) Line(from, to image.Point) {
	gocv.Line(&c.mat, from, to, StrokeColor, 1)
}

// FillCircle draws a filled circle.
func (c *MatCanvas) FillCircle(center image.Point, radius int) {
	gocv.Circle(&c.mat, center, radius, LandmarkColor, -1)
}

// Mat exposes the underlying image. It must not be closed by the caller.
func (c *MatCanvas) Mat() *gocv.Mat {
	return &c.mat
}

// Encode returns the canvas as JPEG bytes.
func (c *MatCanvas) Encode() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, c.mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

// Close releases the canvas memory.
func (c *MatCanvas) Close() error {
	return c.mat.Close()
}
