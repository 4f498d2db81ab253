// Package catalog is the durable relational store for discovered objects and
// their destination groups. It is the single source of truth for lifecycle
// state: every flag transition happens here, inside a transaction, after the
// corresponding remote side effect has been confirmed.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotArchived is returned when a delete-side flag update is attempted for
// a group whose archive success has not been recorded.
var ErrNotArchived = errors.New("group is not archived")

// Store manages the object catalog backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database and applies the
// schema. The parent directory is created if needed.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the catalog database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) applySchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS objects (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            path TEXT NOT NULL UNIQUE,
            year INTEGER NOT NULL,
            month INTEGER NOT NULL,
            day INTEGER NOT NULL,
            origin TEXT NOT NULL,
            bucket TEXT NOT NULL,
            destination_path TEXT NOT NULL,
            size INTEGER NOT NULL,
            date TEXT NOT NULL,
            archived INTEGER NOT NULL DEFAULT 0,
            deleted INTEGER NOT NULL DEFAULT 0,
            ignored INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE INDEX IF NOT EXISTS idx_destination_path ON objects(destination_path)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_deleted ON objects(archived, deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_date_parts ON objects(year, month, day)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Object is one cataloged source object.
type Object struct {
	ID          int64
	Path        string
	Year        int
	Month       int
	Day         int
	Origin      string
	Bucket      string
	Destination string
	Size        int64
	Date        string
	Archived    bool
	Deleted     bool
	Ignored     bool
}

// InsertBatch inserts rows inside one transaction using insert-or-ignore
// semantics: a path that is already cataloged is silently skipped, which is
// what makes re-running an import over the same input idempotent. Returns
// the number of rows actually inserted.
func (s *Store) InsertBatch(ctx context.Context, rows []Object) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO objects
            (path, year, month, day, origin, bucket, destination_path, size, date, archived, deleted, ignored)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx,
			row.Path, row.Year, row.Month, row.Day, row.Origin,
			row.Bucket, row.Destination, row.Size, row.Date,
			boolToInt(row.Ignored),
		)
		if err != nil {
			return 0, fmt.Errorf("insert %q: %w", row.Path, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert batch: %w", err)
	}
	return inserted, nil
}

// GetByPath fetches a cataloged object by its unique path, or nil.
func (s *Store) GetByPath(ctx context.Context, path string) (*Object, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE path = ?`, path)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// Count returns the total number of cataloged objects.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}
	return n, nil
}

const objectColumns = "id, path, year, month, day, origin, bucket, destination_path, size, date, archived, deleted, ignored"

func scanObject(scanner interface{ Scan(dest ...any) error }) (*Object, error) {
	var (
		obj      Object
		archived int
		deleted  int
		ignored  int
	)
	if err := scanner.Scan(
		&obj.ID, &obj.Path, &obj.Year, &obj.Month, &obj.Day,
		&obj.Origin, &obj.Bucket, &obj.Destination, &obj.Size, &obj.Date,
		&archived, &deleted, &ignored,
	); err != nil {
		return nil, err
	}
	obj.Archived = archived != 0
	obj.Deleted = deleted != 0
	obj.Ignored = ignored != 0
	return &obj, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
