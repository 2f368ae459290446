// Package backend talks to the annotation REST service and the IIIF image
// server.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/lewtec/scriptorium/internal/domain"
)

// Client is the annotation REST service as the viewer sees it.
type Client interface {
	// List returns the annotations of an image, optionally narrowed to one classification.
	List(ctx context.Context, imageID string, classification *int64) ([]domain.Record, error)
	Create(ctx context.Context, rec domain.Record) (domain.Record, error)
	Update(ctx context.Context, id int64, patch domain.RecordPatch) (domain.Record, error)
	Delete(ctx context.Context, id int64) error
}

// ImageInfo is the part of a IIIF info.json the viewer needs.
type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case 404:
		return domain.ErrNotFound
	case 400, 422:
		return domain.ErrInvalidInput
	}
	return nil
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
