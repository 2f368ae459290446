package viewer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/identity"
)

// Op is the kind of backend call a saved item turned into.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// FailedItem is one change the backend did not accept.
type FailedItem struct {
	ID  string
	Op  Op
	Err error
}

// SaveError reports the changes of a save that failed. Changes not listed
// here were saved.
type SaveError struct {
	Failed    []FailedItem
	Attempted int
}

func (e *SaveError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d annotation changes failed to save", len(e.Failed), e.Attempted)
	for _, f := range e.Failed {
		fmt.Fprintf(&b, "; %s %s: %s", f.Op, f.ID, f.Err)
	}
	return b.String()
}

func (e *SaveError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// Total reports whether nothing was saved.
func (e *SaveError) Total() bool {
	return len(e.Failed) == e.Attempted
}

type saveItem struct {
	op    Op
	shape domain.Shape
	key   int64

	created domain.Record
	err     error
}

func (it *saveItem) id() string {
	if it.op == OpDelete {
		return identity.FromServer(it.key)
	}
	return it.shape.ID
}

// Save commits the working set: local-only shapes are created, server-backed
// shapes updated and pending deletions issued, all concurrently. Once every
// call settled the cache and the overlay are replaced with the server's
// state. The save runs under ctx alone; closing the viewer does not abort it.
func (v *Viewer) Save(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.saving {
		v.mu.Unlock()
		return ErrSaveInProgress
	}
	v.saving = true
	baseline := v.unsaved
	items := v.planLocked()
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		v.saving = false
		v.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.dispatch(ctx, it)
		}()
	}
	wg.Wait()

	var failed []FailedItem
	for _, it := range items {
		if it.err != nil {
			failed = append(failed, FailedItem{ID: it.id(), Op: it.op, Err: it.err})
		}
	}
	if len(items) > 0 && len(failed) == len(items) {
		log.Printf("viewer: save of %s failed entirely (%d changes)", v.opts.ImageID, len(items))
		return &SaveError{Failed: failed, Attempted: len(items)}
	}

	v.settle(ctx, items, baseline, len(failed))
	if len(failed) > 0 {
		log.Printf("viewer: save of %s: %d of %d changes failed", v.opts.ImageID, len(failed), len(items))
		return &SaveError{Failed: failed, Attempted: len(items)}
	}
	log.Printf("viewer: saved %d changes of %s", len(items), v.opts.ImageID)
	return nil
}

func (v *Viewer) planLocked() []*saveItem {
	var items []*saveItem
	for _, s := range v.overlay.Shapes() {
		if key, ok := identity.ServerID(s.ID); ok {
			items = append(items, &saveItem{op: OpUpdate, shape: s, key: key})
		} else {
			items = append(items, &saveItem{op: OpCreate, shape: s})
		}
	}
	for _, key := range v.pending {
		items = append(items, &saveItem{op: OpDelete, key: key})
	}
	return items
}

func (v *Viewer) dispatch(ctx context.Context, it *saveItem) {
	switch it.op {
	case OpCreate:
		it.created, it.err = v.client.Create(ctx, domain.Record{
			Image:          v.opts.ImageID,
			Geometry:       geometry.ToBackend(it.shape.Geometry).Fragment(),
			Body:           it.shape.Body,
			Classification: v.opts.Classification,
			Hand:           v.opts.Hand,
		})
	case OpUpdate:
		fragment := geometry.ToBackend(it.shape.Geometry).Fragment()
		body := it.shape.Body
		_, it.err = v.client.Update(ctx, it.key, domain.RecordPatch{Geometry: &fragment, Body: &body})
	case OpDelete:
		it.err = v.client.Delete(ctx, it.key)
		if errors.Is(it.err, domain.ErrNotFound) {
			// already gone
			it.err = nil
		}
	}
}

// settle reconciles local state after at least one change was saved.
// Changes made while the save was in flight are kept and stay counted.
func (v *Viewer) settle(ctx context.Context, items []*saveItem, baseline, failures int) {
	saved := make(map[string]bool, len(items))
	for _, it := range items {
		if it.err == nil && it.op != OpDelete {
			saved[it.shape.ID] = true
		}
	}

	v.mu.Lock()
	v.unsaved = max(0, v.unsaved-baseline) + failures
	v.persistUnsavedLocked()
	v.pending = slices.DeleteFunc(v.pending, func(key int64) bool {
		return slices.ContainsFunc(items, func(it *saveItem) bool {
			return it.op == OpDelete && it.key == key && it.err == nil
		})
	})
	v.store.SetPendingDeletes(v.opts.ImageID, v.pending)
	for id := range v.touched {
		if saved[id] {
			delete(v.touched, id)
		}
	}
	for _, it := range items {
		if it.op == OpUpdate && it.err != nil {
			v.touched[it.shape.ID] = true
		}
	}
	v.persistTouchedLocked()
	height := v.height
	v.mu.Unlock()

	if failures == 0 {
		recs, err := v.client.List(ctx, v.opts.ImageID, nil)
		if err == nil {
			v.replaceWithServer(shapesFromRecords(recs, height), saved)
			return
		}
		log.Printf("viewer: while refreshing %s after save: %s", v.opts.ImageID, err)
	}
	v.promote(items, height)
}

// replaceWithServer loads the server's list into the overlay and the cache,
// keeping local-only shapes that were not part of the save.
func (v *Viewer) replaceWithServer(server []domain.Shape, saved map[string]bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	shapes := server
	for _, s := range v.overlay.Shapes() {
		if !identity.IsServerBacked(s.ID) && !saved[s.ID] {
			shapes = append(shapes, s)
		}
	}
	v.overlay.SetShapes(shapes)
	v.store.Write(v.opts.ImageID, shapes, v.height)
}

// promote swaps the local ids of created shapes for their server ids.
func (v *Viewer) promote(items []*saveItem, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, it := range items {
		if it.op != OpCreate || it.err != nil {
			continue
		}
		if it.created.ID <= 0 {
			log.Printf("viewer: backend returned no id for %s", it.shape.ID)
			continue
		}
		s, err := ShapeFromRecord(it.created, height)
		if err != nil {
			s = domain.Shape{ID: identity.FromServer(it.created.ID), Geometry: it.shape.Geometry, Body: it.shape.Body}
		}
		v.overlay.Replace(it.shape.ID, s)
	}
	v.store.Write(v.opts.ImageID, v.overlay.Shapes(), v.height)
}
