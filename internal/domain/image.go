package domain

import (
	"context"
	"time"
)

// Image represents a manuscript image; ID is its IIIF identifier
type Image struct {
	ID         string
	Filename   string
	Width      int
	Height     int
	IngestedAt time.Time
}

// ImageRepository defines the interface for image storage operations
type ImageRepository interface {
	// Upsert creates an image record or refreshes its filename and size
	Upsert(ctx context.Context, img Image) (*Image, error)

	// Get retrieves an image by its identifier, nil if it does not exist
	Get(ctx context.Context, id string) (*Image, error)

	// List retrieves all images
	List(ctx context.Context) ([]*Image, error)

	// Count returns the total number of images
	Count(ctx context.Context) (int64, error)

	// Delete removes an image and its annotations
	Delete(ctx context.Context, id string) error
}
