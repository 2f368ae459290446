// Package tools implements the pan/draw/delete tool modes layered over the
// overlay's event hooks.
package tools

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/overlay"
)

var (
	// ErrNotReady is returned when a mode is requested before Attach.
	ErrNotReady = errors.New("tool controller is not attached")

	// ErrHidden is returned when draw or delete is requested while annotations are hidden.
	ErrHidden = errors.New("annotations are hidden")
)

// Mode is a tool mode.
type Mode int

const (
	Uninitialized Mode = iota
	Pan
	Draw
	Delete
)

func (m Mode) String() string {
	switch m {
	case Pan:
		return "pan"
	case Draw:
		return "draw"
	case Delete:
		return "delete"
	default:
		return "uninitialized"
	}
}

// ParseMode reads a mode name as printed by Mode.String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Pan, Draw, Delete} {
		if m.String() == s {
			return m, nil
		}
	}
	return Uninitialized, fmt.Errorf("unknown tool mode %q", s)
}

// rearmEvents are the events after which the overlay leaves draw mode on its own.
var rearmEvents = []overlay.Event{overlay.EventCreate, overlay.EventCancel, overlay.EventUpdate}

// Controller owns the current mode and the overlay listeners that belong to
// it. Listeners read the mode when they fire, never a copy taken when they
// were attached.
type Controller struct {
	overlay  overlay.Overlay
	onDelete func(domain.Shape)

	mu      sync.Mutex
	mode    Mode
	visible bool
	// listeners of the current mode; at most one mode's set is attached
	detach []func()
}

// NewController creates a controller in the Uninitialized state. onDelete is
// called after the delete tool removed a shape from the overlay.
func NewController(o overlay.Overlay, onDelete func(domain.Shape)) *Controller {
	return &Controller{
		overlay:  o,
		onDelete: onDelete,
		visible:  true,
	}
}

// Attach is called once the overlay reported it is ready; it enters Pan.
func (c *Controller) Attach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enterLocked(Pan)
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Visible reports whether annotations are shown.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// SetMode switches to m, tearing down the previous mode's listeners first.
func (c *Controller) SetMode(m Mode) error {
	if m != Pan && m != Draw && m != Delete {
		return fmt.Errorf("unknown tool mode %d", m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Uninitialized {
		return ErrNotReady
	}
	if !c.visible && m != Pan {
		return ErrHidden
	}
	c.enterLocked(m)
	return nil
}

// SetVisible shows or hides annotations. Hiding always returns to Pan with
// drawing disabled.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = visible
	c.overlay.SetVisible(visible)
	if !visible {
		if c.mode != Uninitialized {
			c.enterLocked(Pan)
		}
		c.overlay.SetDrawingEnabled(false)
	}
}

func (c *Controller) enterLocked(m Mode) {
	for _, off := range c.detach {
		off()
	}
	c.detach = nil

	switch m {
	case Pan:
		c.overlay.SetDrawingEnabled(false)
	case Draw:
		c.overlay.SetDrawingEnabled(true)
		for _, ev := range rearmEvents {
			c.detach = append(c.detach, c.overlay.On(ev, c.rearm))
		}
	case Delete:
		c.overlay.SetDrawingEnabled(false)
		c.detach = append(c.detach, c.overlay.On(overlay.EventSelect, c.deleteSelected))
	}
	if c.mode != m {
		log.Printf("tools: %s -> %s", c.mode, m)
	}
	c.mode = m
}

// rearm turns drawing back on after the overlay switched it off following a
// committed, cancelled or updated shape.
func (c *Controller) rearm(domain.Shape) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Draw && c.visible {
		c.overlay.SetDrawingEnabled(true)
	}
}

// deleteSelected removes a shape selected while in Delete mode. Select
// events may have been queued before a mode switch, so the mode is checked
// now rather than trusted from when the listener was attached.
func (c *Controller) deleteSelected(s domain.Shape) {
	c.mu.Lock()
	if c.mode != Delete {
		c.mu.Unlock()
		return
	}
	removed, ok := c.overlay.Remove(s.ID)
	c.mu.Unlock()
	if !ok {
		return
	}
	if c.onDelete != nil {
		c.onDelete(removed)
	}
}

// ListenerSets reports how many listeners the controller currently has attached.
func (c *Controller) ListenerSets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.detach)
}
