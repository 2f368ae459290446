package viewer

import (
	"fmt"
	"log"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/identity"
)

// ShapeFromRecord projects a server record into overlay space.
func ShapeFromRecord(rec domain.Record, imageHeight int) (domain.Shape, error) {
	r, err := geometry.ParseFragment(rec.Geometry)
	if err != nil {
		return domain.Shape{}, fmt.Errorf("annotation %d: %w", rec.ID, err)
	}
	return domain.Shape{
		ID:       identity.FromServer(rec.ID),
		Geometry: geometry.ToOverlay(r, imageHeight),
		Body:     rec.Body,
		Label:    rec.ClassificationLabel,
	}, nil
}

// shapesFromRecords converts a listing, skipping records whose geometry
// can't be read.
func shapesFromRecords(recs []domain.Record, imageHeight int) []domain.Shape {
	shapes := make([]domain.Shape, 0, len(recs))
	for _, rec := range recs {
		s, err := ShapeFromRecord(rec, imageHeight)
		if err != nil {
			log.Printf("viewer: skipping %s", err)
			continue
		}
		shapes = append(shapes, s)
	}
	return shapes
}
