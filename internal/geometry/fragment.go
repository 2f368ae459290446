package geometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFragment is returned when a selector can't be parsed as a rectangle.
var ErrInvalidFragment = errors.New("invalid fragment selector")

const (
	fragmentPrefix = "xywh="
	pixelUnit      = "pixel:"
)

// Fragment serializes r as a media fragment selector, the form the backend
// stores annotation geometry in.
func (r Rect) Fragment() string {
	return fmt.Sprintf("%s%s%d,%d,%d,%d", fragmentPrefix, pixelUnit, r.X, r.Y, r.Width, r.Height)
}

// ParseFragment reads "xywh=pixel:x,y,w,h" or "xywh=x,y,w,h". Fractional
// values are rounded to the nearest pixel.
func ParseFragment(s string) (Rect, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(s), fragmentPrefix)
	if !ok {
		return Rect{}, fmt.Errorf("%w: %q lacks %q", ErrInvalidFragment, s, fragmentPrefix)
	}
	body = strings.TrimPrefix(body, pixelUnit)
	parts := strings.Split(body, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("%w: %q needs 4 values", ErrInvalidFragment, s)
	}
	var values [4]int
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Rect{}, fmt.Errorf("%w: %q: bad value %q", ErrInvalidFragment, s, part)
		}
		if v < 0 {
			return Rect{}, fmt.Errorf("%w: %q: negative value %q", ErrInvalidFragment, s, part)
		}
		if v > MaxPixel {
			return Rect{}, fmt.Errorf("%w: %q: value %q out of range", ErrInvalidFragment, s, part)
		}
		values[i] = round(v)
	}
	return Rect{X: values[0], Y: values[1], Width: values[2], Height: values[3]}, nil
}
