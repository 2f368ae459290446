package domain

import (
	"context"
	"errors"
	"time"

	"github.com/lewtec/scriptorium/internal/geometry"
)

var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a malformed record or request.
	ErrInvalidInput = errors.New("invalid input")
)

// Shape is an annotation as held by the overlay: the unit of the working set
// and the form stored in the local cache.
type Shape struct {
	ID       string           `json:"id"`
	Geometry geometry.Polygon `json:"geometry"`
	Body     string           `json:"body,omitempty"`

	// Label is the display name of the classification. It is attached for
	// display only and never goes through the overlay or the cache.
	Label string `json:"-"`
}

// Record is an annotation as stored by the backend.
type Record struct {
	ID                  int64     `json:"id"`
	Image               string    `json:"image"`
	Geometry            string    `json:"geometry"`
	Body                string    `json:"body,omitempty"`
	Classification      *int64    `json:"classification,omitempty"`
	ClassificationLabel string    `json:"classification_label,omitempty"`
	Hand                *int64    `json:"hand,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RecordPatch is a partial update; nil fields are left as they are.
type RecordPatch struct {
	Geometry       *string `json:"geometry,omitempty"`
	Body           *string `json:"body,omitempty"`
	Classification *int64  `json:"classification,omitempty"`
	Hand           *int64  `json:"hand,omitempty"`
}

// RecordFilter narrows a listing.
type RecordFilter struct {
	Image          string
	Classification *int64
}

// AnnotationRepository defines the interface for annotation storage operations
type AnnotationRepository interface {
	// List retrieves the annotations of an image, optionally by classification
	List(ctx context.Context, filter RecordFilter) ([]*Record, error)

	// Get retrieves a single annotation, nil if it does not exist
	Get(ctx context.Context, id int64) (*Record, error)

	// Create stores a new annotation and returns it with its assigned id
	Create(ctx context.Context, rec Record) (*Record, error)

	// Update applies a partial update, ErrNotFound if the id is unknown
	Update(ctx context.Context, id int64, patch RecordPatch) (*Record, error)

	// Delete removes an annotation, ErrNotFound if the id is unknown
	Delete(ctx context.Context, id int64) error

	// CountForImage returns the number of annotations on an image
	CountForImage(ctx context.Context, image string) (int64, error)
}
