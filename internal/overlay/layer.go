package overlay

import (
	"fmt"
	"slices"
	"sync"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/identity"
)

type subscription struct {
	id      int
	handler Handler
}

type queuedEvent struct {
	handlers []Handler
	shape    domain.Shape
}

// Layer is an in-process Overlay. It behaves like the browser overlay
// library: drawing switches itself off after every committed, updated or
// cancelled shape, and new shapes get ids the library made up.
//
// Gestures (Attach, Draw, Edit, Cancel, Select, DeleteSelection) emit events
// synchronously. Between Hold and Flush they are queued instead, each with
// the handlers registered at the moment it was emitted, the way an event
// loop delivers queued events.
type Layer struct {
	mu       sync.Mutex
	ready    bool
	visible  bool
	drawing  bool
	shapes   []domain.Shape
	selected string

	subs   map[Event][]subscription
	nextID int

	held  bool
	queue []queuedEvent
}

// NewLayer creates a visible, empty, not yet attached layer.
func NewLayer() *Layer {
	return &Layer{
		visible: true,
		subs:    make(map[Event][]subscription),
	}
}

func (l *Layer) On(ev Event, h Handler) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.subs[ev] = append(l.subs[ev], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.subs[ev] = slices.DeleteFunc(l.subs[ev], func(s subscription) bool { return s.id == id })
		})
	}
}

// ListenerCount returns how many handlers are registered for ev.
func (l *Layer) ListenerCount(ev Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs[ev])
}

func (l *Layer) SetDrawingEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drawing = enabled
}

func (l *Layer) DrawingEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drawing
}

func (l *Layer) SetVisible(visible bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visible = visible
	if !visible {
		l.selected = ""
	}
}

// Visible reports whether the layer is shown.
func (l *Layer) Visible() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visible
}

func (l *Layer) Shapes() []domain.Shape {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.shapes)
}

func (l *Layer) SetShapes(shapes []domain.Shape) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shapes = slices.Clone(shapes)
	if l.indexOf(l.selected) < 0 {
		l.selected = ""
	}
}

func (l *Layer) Remove(id string) (domain.Shape, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(id)
}

func (l *Layer) Replace(oldID string, s domain.Shape) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(oldID)
	if i < 0 {
		return false
	}
	l.shapes[i] = s
	if l.selected == oldID {
		l.selected = s.ID
	}
	return true
}

func (l *Layer) Selected() (domain.Shape, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(l.selected)
	if i < 0 {
		return domain.Shape{}, false
	}
	return l.shapes[i], true
}

// Attach marks the layer as attached to the rendered image and emits EventReady.
func (l *Layer) Attach() {
	l.mu.Lock()
	l.ready = true
	l.mu.Unlock()
	l.emit(EventReady, domain.Shape{})
}

// Draw commits a drawn shape. Drawing must be armed; it is disarmed again
// once the shape is committed.
func (l *Layer) Draw(g geometry.Polygon, body string) (domain.Shape, error) {
	l.mu.Lock()
	if err := l.gestureAllowedLocked(); err != nil {
		l.mu.Unlock()
		return domain.Shape{}, err
	}
	if !l.drawing {
		l.mu.Unlock()
		return domain.Shape{}, ErrDrawingDisabled
	}
	s := domain.Shape{ID: identity.NewLocal(), Geometry: g, Body: body}
	l.shapes = append(l.shapes, s)
	l.drawing = false
	l.mu.Unlock()

	l.emit(EventCreate, s)
	return s, nil
}

// Edit moves or resizes a shape.
func (l *Layer) Edit(id string, g geometry.Polygon) (domain.Shape, error) {
	l.mu.Lock()
	if err := l.gestureAllowedLocked(); err != nil {
		l.mu.Unlock()
		return domain.Shape{}, err
	}
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return domain.Shape{}, fmt.Errorf("%w: %s", ErrUnknownShape, id)
	}
	l.shapes[i].Geometry = g
	s := l.shapes[i]
	l.drawing = false
	l.mu.Unlock()

	l.emit(EventUpdate, s)
	return s, nil
}

// Cancel abandons the current gesture.
func (l *Layer) Cancel() {
	l.mu.Lock()
	l.drawing = false
	l.mu.Unlock()
	l.emit(EventCancel, domain.Shape{})
}

// Select selects a shape.
func (l *Layer) Select(id string) error {
	l.mu.Lock()
	if err := l.gestureAllowedLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownShape, id)
	}
	l.selected = id
	s := l.shapes[i]
	l.mu.Unlock()

	l.emit(EventSelect, s)
	return nil
}

// DeleteSelection deletes the selected shape through the overlay's own editor.
func (l *Layer) DeleteSelection() error {
	l.mu.Lock()
	if err := l.gestureAllowedLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	s, ok := l.removeLocked(l.selected)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: nothing selected", ErrUnknownShape)
	}

	l.emit(EventDelete, s)
	return nil
}

// Hold queues events instead of delivering them.
func (l *Layer) Hold() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
}

// Flush delivers queued events in order and resumes synchronous delivery.
func (l *Layer) Flush() {
	l.mu.Lock()
	queue := l.queue
	l.queue = nil
	l.held = false
	l.mu.Unlock()

	for _, ev := range queue {
		for _, h := range ev.handlers {
			h(ev.shape)
		}
	}
}

func (l *Layer) emit(ev Event, s domain.Shape) {
	l.mu.Lock()
	handlers := make([]Handler, 0, len(l.subs[ev]))
	for _, sub := range l.subs[ev] {
		handlers = append(handlers, sub.handler)
	}
	if l.held {
		l.queue = append(l.queue, queuedEvent{handlers: handlers, shape: s})
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}

func (l *Layer) gestureAllowedLocked() error {
	if !l.ready {
		return ErrNotReady
	}
	if !l.visible {
		return ErrHidden
	}
	return nil
}

func (l *Layer) removeLocked(id string) (domain.Shape, bool) {
	i := l.indexOf(id)
	if i < 0 {
		return domain.Shape{}, false
	}
	s := l.shapes[i]
	l.shapes = slices.Delete(l.shapes, i, i+1)
	if l.selected == id {
		l.selected = ""
	}
	return s, true
}

func (l *Layer) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(l.shapes, func(s domain.Shape) bool { return s.ID == id })
}

var _ Overlay = (*Layer)(nil)
