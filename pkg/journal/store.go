// Package journal keeps a SQLite record of every export session.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/govac/pkg/export"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultTimeout bounds a Record call made without a context.
const DefaultTimeout = 2 * time.Second

// ErrClosed is returned by every operation on a closed Store.
var ErrClosed = errors.New("journal closed")

// Store is the export journal database.
type Store struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ export.Journal = (*Store)(nil)

// New creates a journal at dbPath. The database is opened on first use.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func (s *Store) getDB() (*sql.DB, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening journal: %w", err)
			return
		}
		// A single connection serializes writers.
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.db = db
	})

	return s.db, s.dbErr
}

// Record stores e. It implements export.Journal.
func (s *Store) Record(e export.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return s.RecordContext(ctx, e)
}

// RecordContext stores e.
func (s *Store) RecordContext(ctx context.Context, e export.Entry) (err error) {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertExportSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, e.Session, e.Path, e.StartedAt.UTC(), e.FinishedAt.UTC(),
		e.Bytes, e.Success, e.Status); err != nil {
		return fmt.Errorf("inserting export: %w", err)
	}
	return nil
}

// Entries returns up to limit entries, most recent first.
func (s *Store) Entries(ctx context.Context, limit int) (entries []export.Entry, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectExportsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying exports: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var e export.Entry
		if err = rows.Scan(&e.Session, &e.Path, &e.StartedAt, &e.FinishedAt, &e.Bytes, &e.Success, &e.Status); err != nil {
			return nil, fmt.Errorf("scanning export: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exports: %w", err)
	}
	return entries, nil
}

// LastSession returns the highest recorded session number, or 0.
func (s *Store) LastSession(ctx context.Context) (uint32, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, fmt.Errorf("getting connection: %w", err)
	}

	var last int64
	if err := db.QueryRowContext(ctx, selectLastSessionSQL).Scan(&last); err != nil {
		return 0, fmt.Errorf("querying last session: %w", err)
	}
	return uint32(last), nil
}

// Close closes the database. Later calls on s fail with ErrClosed.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		// Keep a store closed before first use from opening afterwards.
		s.dbOnce.Do(func() {})
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}
