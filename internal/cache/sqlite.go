package cache

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lewtec/scriptorium/internal/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteKV keeps cache keys in a single kv table.
type SQLiteKV struct {
	db *sql.DB
}

// OpenSQLiteKV opens (or creates) the database at filename and migrates the
// kv table. Use ":memory:" for a throwaway store.
func OpenSQLiteKV(filename string) (*SQLiteKV, error) {
	dsn := filename
	if filename != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("while opening cache database: %w", err)
	}
	if filename == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	kv, err := NewSQLiteKV(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

// NewSQLiteKV wraps an open database, creating the kv table if needed.
func NewSQLiteKV(db *sql.DB) (*SQLiteKV, error) {
	if err := migrations.Up(db, migrations.Client); err != nil {
		return nil, err
	}
	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("select value from kv where key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteKV) Set(key, value string) error {
	_, err := s.db.Exec(`
insert into kv (key, value) values (?, ?)
on conflict(key) do update set value=excluded.value, updated_at=CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (s *SQLiteKV) Delete(key string) error {
	_, err := s.db.Exec("delete from kv where key = ?", key)
	return err
}

// Close closes the underlying database.
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

var _ KV = (*SQLiteKV)(nil)
