package geometry

import (
	"errors"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToOverlay(t *testing.T) {
	p := ToOverlay(Rect{X: 10, Y: 20, Width: 50, Height: 30}, 1000)

	assert.Equal(t, 1000, p.Frame)
	require.Len(t, p.Ring, 5)
	assert.Equal(t, Point{10, 980}, p.Ring[0])
	assert.Equal(t, Point{60, 980}, p.Ring[1])
	assert.Equal(t, Point{60, 950}, p.Ring[2])
	assert.Equal(t, Point{10, 950}, p.Ring[3])
	assert.Equal(t, p.Ring[0], p.Ring[4], "ring must be closed")
}

func TestRoundTrip(t *testing.T) {
	roundTrip := func(x, y, w, h uint16, height uint16) bool {
		r := Rect{X: int(x), Y: int(y), Width: int(w), Height: int(h)}
		imageHeight := int(height) + 1
		return ToBackend(ToOverlay(r, imageHeight)) == r
	}
	if err := quick.Check(roundTrip, &quick.Config{MaxCount: 5000}); err != nil {
		t.Error(err)
	}

	t.Run("rectangles larger than the image survive", func(t *testing.T) {
		r := Rect{X: 5, Y: 4000, Width: 10, Height: 9000}
		assert.Equal(t, r, ToBackend(ToOverlay(r, 3000)))
	})

	t.Run("rectangles at the pixel bound survive", func(t *testing.T) {
		r := Rect{X: MaxPixel, Y: MaxPixel, Width: MaxPixel, Height: MaxPixel}
		assert.Equal(t, r, ToBackend(ToOverlay(r, MaxPixel)))
	})

	t.Run("degenerate rectangles survive", func(t *testing.T) {
		r := Rect{X: 7, Y: 7}
		assert.Equal(t, r, ToBackend(ToOverlay(r, 1)))
	})
}

func TestToBackend(t *testing.T) {
	t.Run("empty ring maps to the zero rect", func(t *testing.T) {
		assert.Equal(t, Rect{}, ToBackend(Polygon{Frame: 100}))
	})

	t.Run("ring order does not matter", func(t *testing.T) {
		p := Polygon{Frame: 100, Ring: []Point{{60, 50}, {10, 90}, {60, 90}, {10, 50}}}
		assert.Equal(t, Rect{X: 10, Y: 10, Width: 50, Height: 40}, ToBackend(p))
	})

	t.Run("fractional coordinates are rounded", func(t *testing.T) {
		p := Polygon{Frame: 100, Ring: []Point{{10.4, 89.6}, {19.6, 80.2}}}
		assert.Equal(t, Rect{X: 10, Y: 10, Width: 9, Height: 9}, ToBackend(p))
	})
}

func TestFragment(t *testing.T) {
	r := Rect{X: 1, Y: 2, Width: 3, Height: 4}
	assert.Equal(t, "xywh=pixel:1,2,3,4", r.Fragment())

	parsed, err := ParseFragment(r.Fragment())
	require.NoError(t, err)
	assert.Equal(t, r, parsed)
}

func TestParseFragment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Rect
	}{
		{"unit-less form", "xywh=10,20,30,40", Rect{10, 20, 30, 40}},
		{"pixel form with spaces", " xywh=pixel:10, 20, 30, 40 ", Rect{10, 20, 30, 40}},
		{"fractional values", "xywh=pixel:10.4,20.6,30,40", Rect{10, 21, 30, 40}},
		{"values at the pixel bound", "xywh=pixel:2147483647,0,1,1", Rect{MaxPixel, 0, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFragment(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	invalid := []string{"", "10,20,30,40", "xywh=1,2,3", "xywh=a,b,c,d", "xywh=-1,2,3,4", "xywh=1,2,3,NaN",
		"xywh=pixel:1e19,0,10,10", "xywh=pixel:0,0,2147483648,1"}
	for _, input := range invalid {
		t.Run("rejects "+input, func(t *testing.T) {
			_, err := ParseFragment(input)
			if !errors.Is(err, ErrInvalidFragment) {
				t.Errorf("ParseFragment(%q) error = %v, want ErrInvalidFragment", input, err)
			}
		})
	}
}
