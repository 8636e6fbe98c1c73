package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stocktake/pkg/domain"
)

// Store defines persistence operations for the book catalog.
type Store interface {
	// CreateBook inserts a book and its "created" event. The returned book
	// carries the database-assigned id.
	CreateBook(ctx context.Context, b domain.Book) (domain.Book, error)
	// ListBooks returns every book ordered by ascending id.
	ListBooks(ctx context.Context) ([]domain.Book, error)
	// DeleteBook hard-deletes one book and records a "deleted" event.
	// Returns ErrNotFound when no row matched.
	DeleteBook(ctx context.Context, id int64) error
	// ListBookEvents returns the history of a book id, oldest first.
	ListBookEvents(ctx context.Context, bookID int64) ([]domain.BookEvent, error)

	Ping(ctx context.Context) error
	Close() error
}

// Options configures connection pooling for SQL-backed stores.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Option func(*Options)

// WithPool bounds the connection pool. Zero values keep the defaults.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(opts *Options) {
		if maxOpen > 0 {
			opts.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			opts.MaxIdleConns = maxIdle
		}
		if lifetime > 0 {
			opts.ConnMaxLifetime = lifetime
		}
	}
}

func resolveOptions(options []Option) Options {
	opts := Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	return opts
}

// Open picks a store implementation from the DSN scheme and runs the schema
// migration before returning:
//
//	postgres://… or postgresql://…  Postgres via GORM
//	sqlite://path or file:path     embedded SQLite
//	memory://                      process-local, for development
func Open(dsn string, options ...Option) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("database URL required")
	case strings.HasPrefix(dsn, "memory://"):
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"), options...)
	case strings.HasPrefix(dsn, "file:"):
		return NewSQLiteStore(strings.TrimPrefix(dsn, "file:"), options...)
	default:
		return NewGormStore(dsn, options...)
	}
}
