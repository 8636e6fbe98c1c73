package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"stocktake/internal/util"
	"stocktake/internal/validation"
	"stocktake/pkg/cache"
	"stocktake/pkg/domain"
	"stocktake/pkg/storage"
	"stocktake/pkg/store"
)

// Config holds runtime dependencies for the catalog.
type Config struct {
	Store store.Store
	// Cache is optional; nil disables list caching.
	Cache *cache.ListCache
	// Objects is optional; nil disables snapshots.
	Objects       storage.ObjectStore
	PresignExpiry time.Duration
	Validator     *validation.Validator
	Now           func() time.Time
}

// App implements the catalog operations on top of a Store.
type App struct {
	store         store.Store
	cache         *cache.ListCache
	objects       storage.ObjectStore
	presignExpiry time.Duration
	validator     *validation.Validator
	now           func() time.Time
}

// CreateBookInput is the decoded body of a create request.
type CreateBookInput struct {
	Title  string `json:"title" validate:"required,max=255"`
	Author string `json:"author" validate:"required,max=255"`
	Status string `json:"status" validate:"max=100"`
}

// SnapshotInfo describes an exported stocktake snapshot.
type SnapshotInfo struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	v := cfg.Validator
	if v == nil {
		v = validation.New()
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:         cfg.Store,
		cache:         cfg.Cache,
		objects:       cfg.Objects,
		presignExpiry: expiry,
		validator:     v,
		now:           now,
	}, nil
}

// CreateBook validates the input and stores a new book.
func (a *App) CreateBook(ctx context.Context, in CreateBookInput) (domain.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Status = strings.TrimSpace(in.Status)
	if err := a.validator.Validate(in); err != nil {
		return domain.Book{}, err
	}
	book, err := a.store.CreateBook(ctx, domain.Book{
		Title:  in.Title,
		Author: in.Author,
		Status: in.Status,
	})
	if err != nil {
		return domain.Book{}, mapStoreErr("create book", err)
	}
	a.invalidateList(ctx)
	return book, nil
}

// ListBooks returns every book ordered by id, from the list cache when possible.
func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	var gen int64
	if a.cache != nil {
		books, g, ok, err := a.cache.Get(ctx)
		switch {
		case err != nil:
			util.LoggerFromContext(ctx).Warn("list_cache_read_failed", "err", err)
		case ok:
			return books, nil
		default:
			gen = g
		}
	}
	books, err := a.store.ListBooks(ctx)
	if err != nil {
		return nil, mapStoreErr("list books", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	if a.cache != nil {
		if err := a.cache.Set(ctx, gen, books); err != nil {
			util.LoggerFromContext(ctx).Warn("list_cache_write_failed", "err", err)
		}
	}
	return books, nil
}

// UpdateBook is not supported; it never touches stored data.
func (a *App) UpdateBook(_ context.Context, _ int64, _ domain.BookPatch) error {
	return ErrUpdateNotImplemented
}

// DeleteBook removes a book by id.
func (a *App) DeleteBook(ctx context.Context, id int64) error {
	if err := a.store.DeleteBook(ctx, id); err != nil {
		return mapStoreErr("delete book", err)
	}
	a.invalidateList(ctx)
	return nil
}

// BookHistory returns the recorded events for a book id, oldest first.
func (a *App) BookHistory(ctx context.Context, id int64) ([]domain.BookEvent, error) {
	events, err := a.store.ListBookEvents(ctx, id)
	if err != nil {
		return nil, mapStoreErr("list book events", err)
	}
	if len(events) == 0 {
		return nil, ErrBookNotFound
	}
	return events, nil
}

// Snapshot exports the current catalog to object storage and returns a
// pre-signed URL for it.
func (a *App) Snapshot(ctx context.Context) (SnapshotInfo, error) {
	if a.objects == nil {
		return SnapshotInfo{}, ErrSnapshotsDisabled
	}
	books, err := a.store.ListBooks(ctx)
	if err != nil {
		return SnapshotInfo{}, mapStoreErr("list books", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	createdAt := a.now().UTC()
	body, err := json.Marshal(books)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := snapshotKey(createdAt, util.NewID())
	if err := a.objects.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return SnapshotInfo{}, fmt.Errorf("save snapshot: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, key, a.presignExpiry)
	if err != nil {
		_ = a.objects.Delete(ctx, key)
		return SnapshotInfo{}, fmt.Errorf("presign snapshot: %w", err)
	}
	return SnapshotInfo{
		Key:       key,
		URL:       url,
		Count:     len(books),
		CreatedAt: createdAt,
	}, nil
}

// Ping reports whether the store is reachable.
func (a *App) Ping(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return mapStoreErr("ping", err)
	}
	return nil
}

func (a *App) invalidateList(ctx context.Context) {
	if a.cache == nil {
		return
	}
	// The write already committed; a stale list expires with the TTL.
	if err := a.cache.Invalidate(ctx); err != nil {
		util.LoggerFromContext(ctx).Warn("list_cache_invalidate_failed", "err", err)
	}
}

func mapStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrBookNotFound
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func snapshotKey(at time.Time, id string) string {
	return path.Join("snapshots", at.Format("2006"), at.Format("01"), at.Format("02"), id+".json")
}
