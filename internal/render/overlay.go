package render

import (
	"image"
	"math"

	"github.com/ayusman/handcam/internal/detector"
)

// LandmarkRadius is the radius of each landmark dot in pixels.
const LandmarkRadius = 5

// Overlay renders detection results with a fixed skeleton topology.
type Overlay struct {
	connections []detector.Connection
}

// NewOverlay creates an Overlay drawing the given connections.
func NewOverlay(connections []detector.Connection) *Overlay {
	return &Overlay{connections: connections}
}

// Draw clears the canvas, paints the source image and then, hand by hand in
// reported order, strokes every connection followed by every landmark dot.
func (o *Overlay) Draw(c Canvas, res detector.Result) {
	width, height := c.Size()

	c.Clear()
	if res.Image != nil {
		c.DrawImage(*res.Image)
	}

	for _, landmarks := range res.MultiHandLandmarks {
		for _, conn := range o.connections {
			from, to := conn[0], conn[1]
			if from < 0 || to < 0 || from >= len(landmarks) || to >= len(landmarks) {
				continue
			}
			c.Line(ToPixel(landmarks[from], width, height), ToPixel(landmarks[to], width, height))
		}

		for _, l := range landmarks {
			c.FillCircle(ToPixel(l, width, height), LandmarkRadius)
		}
	}
}

// ToPixel scales a normalized landmark to canvas pixel coordinates.
func ToPixel(l detector.Landmark, width, height int) image.Point {
	return image.Pt(
		int(math.Round(l.X*float64(width))),
		int(math.Round(l.Y*float64(height))),
	)
}
