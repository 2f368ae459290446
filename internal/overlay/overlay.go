// Package overlay models the annotation overlay drawn on top of the deep-zoom
// image: the set of shapes it holds, whether drawing is armed, and the events
// it reports.
package overlay

import (
	"errors"

	"github.com/lewtec/scriptorium/internal/domain"
)

var (
	// ErrDrawingDisabled is returned when a draw gesture arrives while drawing is off.
	ErrDrawingDisabled = errors.New("drawing is disabled")

	// ErrUnknownShape is returned for gestures on an id the overlay doesn't hold.
	ErrUnknownShape = errors.New("unknown shape")

	// ErrNotReady is returned for gestures before the overlay attached to the image.
	ErrNotReady = errors.New("overlay is not attached")

	// ErrHidden is returned for gestures while the layer is hidden.
	ErrHidden = errors.New("overlay is hidden")
)

// Event names something the overlay reports.
type Event string

const (
	// EventReady fires once the overlay attached to the rendered image.
	EventReady Event = "ready"
	// EventCreate fires when a drawn shape is committed.
	EventCreate Event = "createAnnotation"
	// EventUpdate fires when an existing shape was moved or resized.
	EventUpdate Event = "updateAnnotation"
	// EventCancel fires when a draw or edit gesture is abandoned.
	EventCancel Event = "cancelDrawing"
	// EventSelect fires when the user selects a shape.
	EventSelect Event = "selectAnnotation"
	// EventDelete fires when the user deletes a shape through the overlay's own editor.
	EventDelete Event = "deleteAnnotation"
)

// Handler receives the shape an event is about. EventReady and EventCancel
// carry a zero Shape.
type Handler func(domain.Shape)

// Overlay is the surface the synchronization engine drives. Programmatic
// mutations (SetShapes, Remove, Replace) do not emit events; only user
// gestures do.
type Overlay interface {
	// On registers h for ev and returns a function that unregisters it.
	On(ev Event, h Handler) (off func())

	SetDrawingEnabled(enabled bool)
	DrawingEnabled() bool

	SetVisible(visible bool)

	// Shapes returns the live working set.
	Shapes() []domain.Shape
	SetShapes(shapes []domain.Shape)
	Remove(id string) (domain.Shape, bool)
	// Replace swaps the shape stored under oldID for s, keeping its position.
	Replace(oldID string, s domain.Shape) bool

	// Selected returns the currently selected shape, if any.
	Selected() (domain.Shape, bool)
}
