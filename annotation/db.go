package annotation

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/migrations"
	"github.com/lewtec/scriptorium/internal/repository"
)

// GetDatabase opens the backend database. Pragmas go in the DSN so every
// pooled connection gets them.
func GetDatabase(filename string) (*sql.DB, error) {
	if filename == ":memory:" {
		db, err := sql.Open("sqlite", filename)
		if err != nil {
			return nil, err
		}
		// a single connection, so the pragma sticks
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("while enabling foreign keys: %w", err)
		}
		return db, nil
	}
	db, err := sql.Open("sqlite", filename+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("while opening database '%s': %w", filename, err)
	}
	return db, nil
}

func PrepareDatabase(ctx context.Context, db *sql.DB, config *Config, imageFolder string) error {
	log.Printf("PrepareDatabase: running migrations")
	if err := migrations.Up(db, migrations.Backend); err != nil {
		return fmt.Errorf("while migrating database: %w", err)
	}

	log.Printf("PrepareDatabase: starting transaction")
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("while starting database setup transaction: %w", err)
	}
	defer tx.Rollback()

	images := repository.NewImageRepositoryWithTx(tx)
	log.Printf("PrepareDatabase: populating images table")
	err = filepath.WalkDir(imageFolder, func(path string, info fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == imageFolder {
			return nil
		}
		if info.IsDir() {
			return fmt.Errorf("while checking if item '%s' is a file: datasets must be organized in a flat folder structure. Hint: use the 'ingest' subcommand.", path)
		}
		log.Printf("PrepareDatabase: populating images table: %s", path)
		width, height, err := DecodeImageSize(path)
		if err != nil {
			return fmt.Errorf("while checking if item '%s' is an image: %w", path, err)
		}
		fileHash, err := HashFile(path)
		if err != nil {
			return fmt.Errorf("while hashing item '%s': %w", path, err)
		}
		_, err = images.Upsert(ctx, domain.Image{
			ID:         fileHash,
			Filename:   info.Name(),
			Width:      width,
			Height:     height,
			IngestedAt: time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		return err
	}

	if config != nil && len(config.Classifications) > 0 {
		log.Printf("PrepareDatabase: registering %d classifications", len(config.Classifications))
		annotations := repository.NewAnnotationRepositoryWithTx(tx)
		for _, name := range config.Classifications {
			if _, err := annotations.EnsureClassification(ctx, name); err != nil {
				return fmt.Errorf("while registering classification '%s': %w", name, err)
			}
		}
	}

	log.Printf("PrepareDatabase: success! commiting transaction to the database")
	return tx.Commit()
}
