package cache

import (
	"log"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/identity"
)

// Clearer drops the cached entry of an image.
type Clearer interface {
	Clear(imageID string)
}

// Merge combines freshly fetched server shapes with the local-only shapes
// surviving in a cache entry.
//
// An absent entry, or one computed against a different image height, is
// discarded as a whole (and cleared when present) and the server shapes are
// returned as they are. Otherwise only local-only cached shapes are kept,
// minus any whose id the server also returned, and they follow the server
// shapes. Each id appears at most once in the result.
func Merge(imageID string, server []domain.Shape, entry *Entry, imageHeight int, c Clearer) []domain.Shape {
	seen := make(map[string]bool, len(server))
	merged := make([]domain.Shape, 0, len(server))
	for _, shape := range server {
		if seen[shape.ID] {
			continue
		}
		seen[shape.ID] = true
		merged = append(merged, shape)
	}

	if entry == nil {
		return merged
	}
	if entry.ImageHeight != imageHeight {
		log.Printf("cache: entry for %s was computed at height %d, image is now %d; discarding it",
			imageID, entry.ImageHeight, imageHeight)
		c.Clear(imageID)
		return merged
	}

	for _, shape := range entry.Annotations {
		if identity.IsServerBacked(shape.ID) || seen[shape.ID] {
			continue
		}
		seen[shape.ID] = true
		merged = append(merged, shape)
	}
	return merged
}
