// Package migrations embeds the SQL schemas and applies them with golang-migrate.
//
// Two sets exist: Backend holds the images and annotations tables served by
// the development backend, Client holds the key-value table behind the local
// annotation cache.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed backend/*.sql client/*.sql
var files embed.FS

// Set names a directory of migrations inside the embedded filesystem.
type Set string

const (
	Backend Set = "backend"
	Client  Set = "client"
)

// Up applies every pending migration of set to db. The database handle is
// left open.
func Up(db *sql.DB, set Set) error {
	source, err := iofs.New(files, string(set))
	if err != nil {
		return fmt.Errorf("while opening %s migrations: %w", set, err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{
		MigrationsTable: "schema_migrations_" + string(set),
	})
	if err != nil {
		return fmt.Errorf("while preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("while preparing %s migrations: %w", set, err)
	}
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("migrations: %s schema is up to date", set)
		return nil
	}
	if err != nil {
		return fmt.Errorf("while applying %s migrations: %w", set, err)
	}
	version, _, _ := m.Version()
	log.Printf("migrations: %s schema migrated to version %d", set, version)
	return nil
}
