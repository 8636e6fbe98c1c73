package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stocktake/pkg/domain"

	_ "modernc.org/sqlite"
)

// AUTOINCREMENT keeps SQLite from handing out the id of a deleted row again.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	status TEXT
);
CREATE TABLE IF NOT EXISTS book_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id INTEGER NOT NULL,
	action TEXT NOT NULL,
	payload TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_book_events_book_id ON book_events(book_id);
`

// SQLiteStore implements Store on an embedded SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database file at path and applies the schema.
func NewSQLiteStore(path string, options ...Option) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if strings.Contains(path, "?") {
		return nil, fmt.Errorf("sqlite path %q must not carry query parameters; connection pragmas are fixed by the store", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	opts := resolveOptions(options)

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// CreateBook inserts the row and its "created" event in one transaction.
func (s *SQLiteStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Book{}, classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO books (title, author, status) VALUES (?, ?, ?)",
		b.Title, b.Author, b.Status)
	if err != nil {
		return domain.Book{}, classify(fmt.Errorf("insert book: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Book{}, fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	if err := insertEventTx(ctx, tx, b, domain.ActionCreated); err != nil {
		return domain.Book{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Book{}, classify(fmt.Errorf("commit: %w", err))
	}
	return b, nil
}

// ListBooks returns all books ordered by id.
func (s *SQLiteStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, author, status FROM books ORDER BY id ASC")
	if err != nil {
		return nil, classify(fmt.Errorf("list books: %w", err))
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		var (
			b      domain.Book
			status sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &status); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		b.Status = status.String
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return books, nil
}

// DeleteBook removes the row and records a "deleted" event.
func (s *SQLiteStore) DeleteBook(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	var (
		b      domain.Book
		status sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		"DELETE FROM books WHERE id = ? RETURNING id, title, author, status", id).
		Scan(&b.ID, &b.Title, &b.Author, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return classify(fmt.Errorf("delete book: %w", err))
	}
	b.Status = status.String
	if err := insertEventTx(ctx, tx, b, domain.ActionDeleted); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// ListBookEvents returns events for a book id, oldest first.
func (s *SQLiteStore) ListBookEvents(ctx context.Context, bookID int64) ([]domain.BookEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, book_id, action, payload, created_at FROM book_events WHERE book_id = ? ORDER BY id ASC",
		bookID)
	if err != nil {
		return nil, classify(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	events := make([]domain.BookEvent, 0)
	for rows.Next() {
		var (
			e         domain.BookEvent
			action    string
			payload   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.BookID, &action, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Action = domain.EventAction(action)
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return events, nil
}

// Ping checks the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

// Close closes the underlying pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func insertEventTx(ctx context.Context, tx *sql.Tx, b domain.Book, action domain.EventAction) error {
	event, err := newEventModel(b, action)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO book_events (book_id, action, payload, created_at) VALUES (?, ?, ?, ?)",
		event.BookID, event.Action, string(event.Payload), event.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return classify(fmt.Errorf("insert event: %w", err))
	}
	return nil
}
