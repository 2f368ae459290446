package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lewtec/scriptorium/internal/domain"
)

const annotationSelect = `
select a.id, a.image_id, a.geometry, a.body, a.classification, coalesce(c.name, ''), a.hand, a.created_at, a.updated_at
from annotations a
left join classifications c on c.id = a.classification
`

// AnnotationRepository implements domain.AnnotationRepository on SQLite
type AnnotationRepository struct {
	db DBTX
}

// NewAnnotationRepository creates a new AnnotationRepository
func NewAnnotationRepository(db *sql.DB) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

// NewAnnotationRepositoryWithTx creates a new AnnotationRepository with a transaction
func NewAnnotationRepositoryWithTx(tx *sql.Tx) *AnnotationRepository {
	return &AnnotationRepository{db: tx}
}

// List retrieves the annotations of an image, optionally by classification
func (r *AnnotationRepository) List(ctx context.Context, filter domain.RecordFilter) ([]*domain.Record, error) {
	query := annotationSelect + "where a.image_id = ? "
	args := []interface{}{filter.Image}
	if filter.Classification != nil {
		query += "and a.classification = ? "
		args = append(args, *filter.Classification)
	}
	query += "order by a.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*domain.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Get retrieves a single annotation
func (r *AnnotationRepository) Get(ctx context.Context, id int64) (*domain.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, annotationSelect+"where a.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Create stores a new annotation
func (r *AnnotationRepository) Create(ctx context.Context, rec domain.Record) (*domain.Record, error) {
	res, err := r.db.ExecContext(ctx, `
insert into annotations (image_id, geometry, body, classification, hand) values (?, ?, ?, ?, ?)
`, rec.Image, rec.Geometry, rec.Body, nullInt(rec.Classification), nullInt(rec.Hand))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Update applies a partial update
func (r *AnnotationRepository) Update(ctx context.Context, id int64, patch domain.RecordPatch) (*domain.Record, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{}
	if patch.Geometry != nil {
		sets = append(sets, "geometry = ?")
		args = append(args, *patch.Geometry)
	}
	if patch.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *patch.Body)
	}
	if patch.Classification != nil {
		sets = append(sets, "classification = ?")
		args = append(args, *patch.Classification)
	}
	if patch.Hand != nil {
		sets = append(sets, "hand = ?")
		args = append(args, *patch.Hand)
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, "update annotations set "+strings.Join(sets, ", ")+" where id = ?", args...)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes an annotation by ID
func (r *AnnotationRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "delete from annotations where id = ?", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// CountForImage returns the number of annotations on an image
func (r *AnnotationRepository) CountForImage(ctx context.Context, image string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "select count(*) from annotations where image_id = ?", image).Scan(&count)
	return count, err
}

// EnsureClassification returns the id of the named classification, creating it if needed
func (r *AnnotationRepository) EnsureClassification(ctx context.Context, name string) (int64, error) {
	_, err := r.db.ExecContext(ctx, "insert into classifications (name) values (?) on conflict(name) do nothing", name)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRowContext(ctx, "select id from classifications where name = ?", name).Scan(&id)
	return id, err
}

func scanRecord(row scanner) (*domain.Record, error) {
	var rec domain.Record
	var classification, hand sql.NullInt64
	err := row.Scan(&rec.ID, &rec.Image, &rec.Geometry, &rec.Body, &classification, &rec.ClassificationLabel, &hand, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Classification = fromNullInt(classification)
	rec.Hand = fromNullInt(hand)
	return &rec, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// Verify that AnnotationRepository implements domain.AnnotationRepository
var _ domain.AnnotationRepository = (*AnnotationRepository)(nil)
