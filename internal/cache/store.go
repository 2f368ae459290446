// Package cache persists the per-image annotation working set so unsaved
// work survives a reload, and reconciles it with fresh server state.
package cache

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/lewtec/scriptorium/internal/domain"
)

// Entry is the cached working set of one image together with the image
// height its geometry was computed against.
type Entry struct {
	Annotations []domain.Shape
	ImageHeight int
}

type entryMeta struct {
	ImageHeight int `json:"imageHeight"`
}

// AnnotationsKey holds the JSON array of cached shapes.
func AnnotationsKey(imageID string) string { return "annotations:" + imageID }

// MetaKey holds the height the cached shapes were computed against.
func MetaKey(imageID string) string { return "annotations:meta:" + imageID }

// DeletedKey holds server keys deleted locally but not yet on the server.
func DeletedKey(imageID string) string { return "annotations:deleted:" + imageID }

// TouchedKey holds ids of server-backed shapes edited locally but not yet saved.
func TouchedKey(imageID string) string { return "annotations:touched:" + imageID }

// UnsavedKey holds the unsaved-change counter.
func UnsavedKey(imageID string) string { return "unsaved:" + imageID }

// VisibleKey holds the last annotation visibility toggle.
func VisibleKey(imageID string) string { return "annotationsVisible:" + imageID }

// Store is the local cache. None of its writes fail: storage errors are
// logged and the next load simply starts cold.
type Store struct {
	kv KV
}

// NewStore creates a cache over kv.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Read returns the cached entry for an image. Missing, unreadable or corrupt
// entries are reported as absent.
func (s *Store) Read(imageID string) (Entry, bool) {
	rawShapes, ok, err := s.kv.Get(AnnotationsKey(imageID))
	if err != nil {
		log.Printf("cache: while reading annotations of %s: %s", imageID, err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	rawMeta, ok, err := s.kv.Get(MetaKey(imageID))
	if err != nil {
		log.Printf("cache: while reading metadata of %s: %s", imageID, err)
		return Entry{}, false
	}
	if !ok {
		log.Printf("cache: annotations of %s have no metadata, ignoring them", imageID)
		return Entry{}, false
	}

	var shapes []domain.Shape
	if err := json.Unmarshal([]byte(rawShapes), &shapes); err != nil {
		log.Printf("cache: corrupt annotations for %s: %s", imageID, err)
		return Entry{}, false
	}
	var meta entryMeta
	if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil || meta.ImageHeight <= 0 {
		log.Printf("cache: corrupt metadata for %s: %q", imageID, rawMeta)
		return Entry{}, false
	}
	return Entry{Annotations: shapes, ImageHeight: meta.ImageHeight}, true
}

// Write replaces the cached entry of an image.
func (s *Store) Write(imageID string, shapes []domain.Shape, imageHeight int) {
	if shapes == nil {
		shapes = []domain.Shape{}
	}
	rawShapes, err := json.Marshal(shapes)
	if err != nil {
		log.Printf("cache: while encoding annotations of %s: %s", imageID, err)
		return
	}
	rawMeta, _ := json.Marshal(entryMeta{ImageHeight: imageHeight})
	if err := s.kv.Set(AnnotationsKey(imageID), string(rawShapes)); err != nil {
		log.Printf("cache: while writing annotations of %s: %s", imageID, err)
		return
	}
	if err := s.kv.Set(MetaKey(imageID), string(rawMeta)); err != nil {
		log.Printf("cache: while writing metadata of %s: %s", imageID, err)
	}
}

// Clear drops the cached entry of an image.
func (s *Store) Clear(imageID string) {
	for _, key := range []string{AnnotationsKey(imageID), MetaKey(imageID)} {
		if err := s.kv.Delete(key); err != nil {
			log.Printf("cache: while clearing %s: %s", key, err)
		}
	}
}

// Resolve reads the cached entry of an image and merges it with the freshly
// fetched server shapes. See Merge.
func (s *Store) Resolve(imageID string, server []domain.Shape, imageHeight int) []domain.Shape {
	entry, ok := s.Read(imageID)
	if !ok {
		return Merge(imageID, server, nil, imageHeight, s)
	}
	return Merge(imageID, server, &entry, imageHeight, s)
}

// Unsaved returns the persisted unsaved-change counter, zero if absent.
func (s *Store) Unsaved(imageID string) int {
	raw, ok, err := s.kv.Get(UnsavedKey(imageID))
	if err != nil {
		log.Printf("cache: while reading unsaved counter of %s: %s", imageID, err)
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Printf("cache: corrupt unsaved counter for %s: %q", imageID, raw)
		return 0
	}
	return n
}

// SetUnsaved persists the unsaved-change counter.
func (s *Store) SetUnsaved(imageID string, n int) {
	if err := s.kv.Set(UnsavedKey(imageID), strconv.Itoa(n)); err != nil {
		log.Printf("cache: while writing unsaved counter of %s: %s", imageID, err)
	}
}

// ClearUnsaved removes the persisted unsaved-change counter.
func (s *Store) ClearUnsaved(imageID string) {
	if err := s.kv.Delete(UnsavedKey(imageID)); err != nil {
		log.Printf("cache: while clearing unsaved counter of %s: %s", imageID, err)
	}
}

// Visible returns the last visibility toggle, true if never set.
func (s *Store) Visible(imageID string) bool {
	raw, ok, err := s.kv.Get(VisibleKey(imageID))
	if err != nil || !ok {
		return true
	}
	return raw != "false"
}

// SetVisible persists the visibility toggle.
func (s *Store) SetVisible(imageID string, visible bool) {
	if err := s.kv.Set(VisibleKey(imageID), strconv.FormatBool(visible)); err != nil {
		log.Printf("cache: while writing visibility of %s: %s", imageID, err)
	}
}

// PendingDeletes returns server keys deleted locally and not yet saved.
func (s *Store) PendingDeletes(imageID string) []int64 {
	raw, ok, err := s.kv.Get(DeletedKey(imageID))
	if err != nil {
		log.Printf("cache: while reading pending deletions of %s: %s", imageID, err)
		return nil
	}
	if !ok {
		return nil
	}
	var keys []int64
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		log.Printf("cache: corrupt pending deletions for %s: %s", imageID, err)
		return nil
	}
	return keys
}

// SetPendingDeletes persists the pending deletions; an empty list removes the key.
func (s *Store) SetPendingDeletes(imageID string, keys []int64) {
	if len(keys) == 0 {
		if err := s.kv.Delete(DeletedKey(imageID)); err != nil {
			log.Printf("cache: while clearing pending deletions of %s: %s", imageID, err)
		}
		return
	}
	raw, _ := json.Marshal(keys)
	if err := s.kv.Set(DeletedKey(imageID), string(raw)); err != nil {
		log.Printf("cache: while writing pending deletions of %s: %s", imageID, err)
	}
}

// Touched returns the ids of server-backed shapes edited and not yet saved.
func (s *Store) Touched(imageID string) []string {
	raw, ok, err := s.kv.Get(TouchedKey(imageID))
	if err != nil {
		log.Printf("cache: while reading edited annotations of %s: %s", imageID, err)
		return nil
	}
	if !ok {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		log.Printf("cache: corrupt edited annotations for %s: %s", imageID, err)
		return nil
	}
	return ids
}

// SetTouched persists the edited ids; an empty list removes the key.
func (s *Store) SetTouched(imageID string, ids []string) {
	if len(ids) == 0 {
		if err := s.kv.Delete(TouchedKey(imageID)); err != nil {
			log.Printf("cache: while clearing edited annotations of %s: %s", imageID, err)
		}
		return
	}
	raw, _ := json.Marshal(ids)
	if err := s.kv.Set(TouchedKey(imageID), string(raw)); err != nil {
		log.Printf("cache: while writing edited annotations of %s: %s", imageID, err)
	}
}
