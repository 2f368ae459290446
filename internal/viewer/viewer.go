// Package viewer keeps the annotation working set of one image in sync with
// the local cache and the backend.
package viewer

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/lewtec/scriptorium/internal/backend"
	"github.com/lewtec/scriptorium/internal/cache"
	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/identity"
	"github.com/lewtec/scriptorium/internal/overlay"
	"github.com/lewtec/scriptorium/internal/tools"
)

var (
	// ErrClosed is returned by operations on a closed viewer.
	ErrClosed = errors.New("viewer is closed")

	// ErrSaveInProgress is returned when Save is called while another save is running.
	ErrSaveInProgress = errors.New("a save is already in progress")
)

// ImageInfoFetcher reads image dimensions from a IIIF info.json.
type ImageInfoFetcher interface {
	FetchImageInfo(ctx context.Context, infoURL string) (backend.ImageInfo, error)
}

// Options describe the image a viewer is opened on.
type Options struct {
	ImageID string
	// InfoURL is the image's info.json. Empty means the fallback height is used.
	InfoURL string
	// FallbackHeight is used when the image info can't be fetched.
	FallbackHeight int
	// Classification and Hand are attached to annotations created here.
	Classification *int64
	Hand           *int64
}

// Viewer owns the per-image state: height, unsaved counter, visibility,
// pending deletions and the tool controller.
type Viewer struct {
	opts    Options
	overlay overlay.Overlay
	client  backend.Client
	info    ImageInfoFetcher
	store   *cache.Store
	tools   *tools.Controller

	lifetime context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	loaded  bool
	closed  bool
	saving  bool
	height  int
	unsaved int
	pending []int64
	// server-backed ids already counted as modified since the last save
	touched map[string]bool
	offs    []func()
}

// New creates a viewer. info may be nil, in which case the fallback height
// is always used. The overlay's ready event attaches the tool controller.
func New(opts Options, o overlay.Overlay, client backend.Client, info ImageInfoFetcher, store *cache.Store) *Viewer {
	if opts.FallbackHeight <= 0 {
		opts.FallbackHeight = geometry.DefaultImageHeight
	}
	lifetime, cancel := context.WithCancel(context.Background())
	v := &Viewer{
		opts:     opts,
		overlay:  o,
		client:   client,
		info:     info,
		store:    store,
		lifetime: lifetime,
		cancel:   cancel,
		touched:  make(map[string]bool),
	}
	v.tools = tools.NewController(o, v.deleted)
	v.offs = []func(){
		o.On(overlay.EventReady, func(domain.Shape) { v.tools.Attach() }),
		o.On(overlay.EventCreate, v.created),
		o.On(overlay.EventUpdate, v.updated),
		o.On(overlay.EventDelete, v.deleted),
	}
	return v
}

// Load fetches image dimensions and server annotations, reconciles them with
// the cache and fills the overlay. Backend failures are logged and leave the
// viewer usable.
func (v *Viewer) Load(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.mu.Unlock()

	height := v.fetchHeight(ctx)

	recs, err := v.client.List(ctx, v.opts.ImageID, nil)
	if err != nil {
		log.Printf("viewer: while loading annotations of %s: %s", v.opts.ImageID, err)
		recs = nil
	}
	server := shapesFromRecords(recs, height)
	cached, hasCached := v.store.Read(v.opts.ImageID)
	shapes := v.store.Resolve(v.opts.ImageID, server, height)

	pending := v.store.PendingDeletes(v.opts.ImageID)
	if len(pending) > 0 {
		shapes = slices.DeleteFunc(shapes, func(s domain.Shape) bool {
			key, ok := identity.ServerID(s.ID)
			return ok && slices.Contains(pending, key)
		})
	}
	var edited []domain.Shape
	if hasCached && cached.ImageHeight == height {
		edited = cached.Annotations
	}
	touched := restoreEdits(shapes, edited, v.store.Touched(v.opts.ImageID))

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.height = height
	v.pending = pending
	v.touched = touched
	v.unsaved = countUnsaved(shapes, pending, touched)
	if stored := v.store.Unsaved(v.opts.ImageID); stored != v.unsaved {
		log.Printf("viewer: unsaved counter of %s was %d, recounted %d", v.opts.ImageID, stored, v.unsaved)
	}
	v.persistUnsavedLocked()
	v.persistTouchedLocked()
	v.loaded = true
	v.overlay.SetShapes(shapes)
	v.store.Write(v.opts.ImageID, shapes, height)
	visible := v.store.Visible(v.opts.ImageID)
	log.Printf("viewer: loaded %s: %d annotations, height %d, %d unsaved", v.opts.ImageID, len(shapes), height, v.unsaved)

	// tools never call back into the viewer while applying visibility
	v.tools.SetVisible(visible)
	return nil
}

// restoreEdits puts the cached geometry and body of locally edited
// server-backed shapes back over the server copy. Edits of shapes the server
// no longer returns, or whose cache was discarded, are dropped. It returns the
// ids whose edits survived.
func restoreEdits(shapes, cached []domain.Shape, ids []string) map[string]bool {
	touched := make(map[string]bool, len(ids))
	for _, id := range ids {
		i := slices.IndexFunc(shapes, func(s domain.Shape) bool { return s.ID == id })
		j := slices.IndexFunc(cached, func(s domain.Shape) bool { return s.ID == id })
		if i < 0 || j < 0 {
			log.Printf("viewer: dropping unsaved edit of %s", id)
			continue
		}
		shapes[i].Geometry = cached[j].Geometry
		shapes[i].Body = cached[j].Body
		touched[id] = true
	}
	return touched
}

// countUnsaved counts the changes a save would send: local-only shapes,
// pending deletions and edited server-backed shapes.
func countUnsaved(shapes []domain.Shape, pending []int64, touched map[string]bool) int {
	n := len(pending) + len(touched)
	for _, s := range shapes {
		if !identity.IsServerBacked(s.ID) {
			n++
		}
	}
	return n
}

// fetchHeight asks the image server for the height, bounded by both ctx and
// the viewer lifetime.
func (v *Viewer) fetchHeight(ctx context.Context) int {
	if v.info == nil || v.opts.InfoURL == "" {
		return v.opts.FallbackHeight
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.lifetime, cancel)
	defer stop()

	info, err := v.info.FetchImageInfo(ctx, v.opts.InfoURL)
	if err != nil {
		log.Printf("viewer: using fallback height %d for %s: %s", v.opts.FallbackHeight, v.opts.ImageID, err)
		return v.opts.FallbackHeight
	}
	return info.Height
}

func (v *Viewer) created(domain.Shape) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bumpLocked(1)
	v.writeCacheLocked()
}

func (v *Viewer) updated(s domain.Shape) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if identity.IsServerBacked(s.ID) && !v.touched[s.ID] {
		v.touched[s.ID] = true
		v.persistTouchedLocked()
		v.bumpLocked(1)
	}
	v.writeCacheLocked()
}

// deleted handles a shape already removed from the overlay, whether by the
// delete tool, the keyboard or the overlay's own editor.
func (v *Viewer) deleted(s domain.Shape) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key, ok := identity.ServerID(s.ID)
	switch {
	case !ok:
		v.bumpLocked(-1)
	case v.touched[s.ID]:
		// the pending update turns into a pending deletion
		delete(v.touched, s.ID)
		v.persistTouchedLocked()
		v.addPendingLocked(key)
	default:
		v.addPendingLocked(key)
		v.bumpLocked(1)
	}
	v.writeCacheLocked()
}

func (v *Viewer) addPendingLocked(key int64) {
	if slices.Contains(v.pending, key) {
		return
	}
	v.pending = append(v.pending, key)
	v.store.SetPendingDeletes(v.opts.ImageID, v.pending)
}

func (v *Viewer) bumpLocked(delta int) {
	v.unsaved = max(0, v.unsaved+delta)
	v.persistUnsavedLocked()
}

func (v *Viewer) persistUnsavedLocked() {
	if v.unsaved == 0 {
		v.store.ClearUnsaved(v.opts.ImageID)
		return
	}
	v.store.SetUnsaved(v.opts.ImageID, v.unsaved)
}

func (v *Viewer) persistTouchedLocked() {
	ids := make([]string, 0, len(v.touched))
	for id := range v.touched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	v.store.SetTouched(v.opts.ImageID, ids)
}

func (v *Viewer) writeCacheLocked() {
	if !v.loaded {
		return
	}
	v.store.Write(v.opts.ImageID, v.overlay.Shapes(), v.height)
}

// SetMode switches the annotation tool.
func (v *Viewer) SetMode(m tools.Mode) error {
	if v.isClosed() {
		return ErrClosed
	}
	return v.tools.SetMode(m)
}

// Mode returns the current tool.
func (v *Viewer) Mode() tools.Mode {
	return v.tools.Mode()
}

// SetVisible shows or hides the annotations and remembers the choice.
func (v *Viewer) SetVisible(visible bool) error {
	if v.isClosed() {
		return ErrClosed
	}
	v.tools.SetVisible(visible)
	v.store.SetVisible(v.opts.ImageID, visible)
	return nil
}

// Visible reports whether annotations are shown.
func (v *Viewer) Visible() bool {
	return v.tools.Visible()
}

// DeleteSelected deletes the selected shape, if there is one.
func (v *Viewer) DeleteSelected() bool {
	if v.isClosed() {
		return false
	}
	sel, ok := v.overlay.Selected()
	if !ok {
		return false
	}
	removed, ok := v.overlay.Remove(sel.ID)
	if !ok {
		return false
	}
	v.deleted(removed)
	return true
}

// HandleKey applies a keyboard shortcut. Key names are "+"-joined and case
// insensitive, like "ctrl+s". It reports whether the key was handled.
func (v *Viewer) HandleKey(ctx context.Context, key string) (bool, error) {
	switch strings.ToLower(key) {
	case "ctrl+s", "meta+s":
		if v.Unsaved() == 0 {
			return false, nil
		}
		return true, v.Save(ctx)
	case "delete", "backspace":
		return v.DeleteSelected(), nil
	}
	return false, nil
}

// Unsaved returns the number of unsaved changes.
func (v *Viewer) Unsaved() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unsaved
}

// Height returns the image height the working set is projected against.
func (v *Viewer) Height() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.height
}

// PendingDeletes returns server keys deleted locally and not yet saved.
func (v *Viewer) PendingDeletes() []int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.pending)
}

// Shapes returns the working set.
func (v *Viewer) Shapes() []domain.Shape {
	return v.overlay.Shapes()
}

// Close ends the viewer's lifetime, cancelling an image info fetch still in
// flight. A save already dispatched is not cancelled.
func (v *Viewer) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	offs := v.offs
	v.offs = nil
	v.mu.Unlock()

	v.cancel()
	for _, off := range offs {
		off()
	}
	// drops the controller's own listeners; fails harmlessly if never attached
	_ = v.tools.SetMode(tools.Pan)
}

func (v *Viewer) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
