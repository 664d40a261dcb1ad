// Package detector wraps an external hand-landmark capability and turns its
// raw output into typed detection results.
package detector

import (
	"math"
	"time"

	"gocv.io/x/gocv"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Landmark is one tracked point on a hand. X and Y are normalized to [0,1]
// relative to the frame dimensions; Z is relative depth as reported by the
// capability.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Connection is a pair of landmark indices forming one skeleton edge.
type Connection [2]int

// HandConnections is the hand skeleton topology published by MediaPipe Hands.
var HandConnections = []Connection{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{IndexMCP, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{MiddleMCP, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{RingMCP, PinkyMCP}, {Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP},
	{PinkyDIP, PinkyTip},
}

// Hand is a single detected hand as returned by a Capability.
type Hand struct {
	Landmarks  []Landmark `json:"landmarks"`
	Handedness string     `json:"handedness"` // "Left" or "Right"
	Score      float64    `json:"score"`
}

// Valid reports whether every landmark of the hand has finite coordinates.
func (h Hand) Valid() bool {
	if len(h.Landmarks) == 0 {
		return false
	}
	for _, l := range h.Landmarks {
		if !finite(l.X) || !finite(l.Y) || !finite(l.Z) {
			return false
		}
	}
	return true
}

// Result is the outcome of processing one frame. Image is owned by the
// adapter and is only valid for the duration of the result callback.
type Result struct {
	Image              *gocv.Mat
	MultiHandLandmarks [][]Landmark
	Handedness         []string
	Timestamp          time.Time
}

// Empty reports whether no hand was detected.
func (r Result) Empty() bool {
	return len(r.MultiHandLandmarks) == 0
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
