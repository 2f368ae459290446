// Package geometry converts annotation shapes between the backend pixel space
// (origin top-left, y down) and the overlay space (origin bottom-left, y up).
package geometry

import (
	"math"
)

// DefaultImageHeight is used when the image metadata endpoint can't be reached.
const DefaultImageHeight = 3000

// MaxPixel bounds every Rect field and image height. Coordinates up to it
// convert to and from overlay space exactly.
const MaxPixel = math.MaxInt32

// Rect is an axis-aligned rectangle in backend pixel space. Fields are in
// [0, MaxPixel].
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is an overlay coordinate pair.
type Point [2]float64

// Polygon is the overlay representation of a shape. Frame is the pixel height
// of the image the ring was projected against.
type Polygon struct {
	Frame int     `json:"frame"`
	Ring  []Point `json:"ring"`
}

// ToOverlay projects r into overlay space for an image of the given height.
// The returned ring is closed and starts at the top-left corner.
func ToOverlay(r Rect, imageHeight int) Polygon {
	left := float64(r.X)
	right := float64(r.X + r.Width)
	top := float64(imageHeight - r.Y)
	bottom := top - float64(r.Height)
	return Polygon{
		Frame: imageHeight,
		Ring: []Point{
			{left, top},
			{right, top},
			{right, bottom},
			{left, bottom},
			{left, top},
		},
	}
}

// ToBackend maps an overlay polygon back to its bounding rectangle in backend
// space. An empty ring maps to the zero Rect.
func ToBackend(p Polygon) Rect {
	if len(p.Ring) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range p.Ring {
		minX = math.Min(minX, pt[0])
		maxX = math.Max(maxX, pt[0])
		minY = math.Min(minY, pt[1])
		maxY = math.Max(maxY, pt[1])
	}
	return Rect{
		X:      round(minX),
		Y:      round(float64(p.Frame) - maxY),
		Width:  round(maxX - minX),
		Height: round(maxY - minY),
	}
}

func round(v float64) int {
	return int(math.Round(v))
}
