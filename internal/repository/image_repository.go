package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lewtec/scriptorium/internal/domain"
)

const imageColumns = "id, filename, width, height, ingested_at"

// ImageRepository implements domain.ImageRepository on SQLite
type ImageRepository struct {
	db DBTX
}

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewImageRepository creates a new ImageRepository
func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// NewImageRepositoryWithTx creates a new ImageRepository with a transaction
func NewImageRepositoryWithTx(tx *sql.Tx) *ImageRepository {
	return &ImageRepository{db: tx}
}

// Upsert creates an image record or refreshes its filename and size
func (r *ImageRepository) Upsert(ctx context.Context, img domain.Image) (*domain.Image, error) {
	_, err := r.db.ExecContext(ctx, `
insert into images (id, filename, width, height) values (?, ?, ?, ?)
on conflict(id) do update set filename=excluded.filename, width=excluded.width, height=excluded.height
`, img.ID, img.Filename, img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, img.ID)
}

// Get retrieves an image by its identifier
func (r *ImageRepository) Get(ctx context.Context, id string) (*domain.Image, error) {
	row := r.db.QueryRowContext(ctx, "select "+imageColumns+" from images where id = ?", id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// List retrieves all images
func (r *ImageRepository) List(ctx context.Context) ([]*domain.Image, error) {
	rows, err := r.db.QueryContext(ctx, "select "+imageColumns+" from images order by filename, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, img)
	}
	return result, rows.Err()
}

// Count returns the total number of images
func (r *ImageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "select count(*) from images").Scan(&count)
	return count, err
}

// Delete removes an image by identifier
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "delete from images where id = ?", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(row scanner) (*domain.Image, error) {
	var img domain.Image
	if err := row.Scan(&img.ID, &img.Filename, &img.Width, &img.Height, &img.IngestedAt); err != nil {
		return nil, err
	}
	return &img, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Verify that ImageRepository implements domain.ImageRepository
var _ domain.ImageRepository = (*ImageRepository)(nil)
