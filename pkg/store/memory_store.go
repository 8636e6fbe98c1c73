package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"stocktake/pkg/domain"
)

// MemoryStore keeps the catalog in-process. Ids come from a counter that is
// never rewound, matching the SQL stores.
type MemoryStore struct {
	mu      sync.RWMutex
	books   map[int64]domain.Book
	orders  []int64
	events  []domain.BookEvent
	nextID  int64
	eventID int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[int64]domain.Book),
	}
}

// CreateBook assigns the next id and stores the book.
func (m *MemoryStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return domain.Book{}, classify(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	m.books[b.ID] = b
	m.orders = append(m.orders, b.ID)
	m.appendEvent(b, domain.ActionCreated)
	return b, nil
}

// ListBooks returns books in id order. Ids are assigned increasingly, so
// insertion order is id order.
func (m *MemoryStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.orders))
	for _, id := range m.orders {
		if b, ok := m.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// DeleteBook removes a book; ErrNotFound when absent.
func (m *MemoryStore) DeleteBook(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return classify(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.books, id)
	filtered := m.orders[:0]
	for _, item := range m.orders {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.orders = filtered
	m.appendEvent(b, domain.ActionDeleted)
	return nil
}

// ListBookEvents returns events recorded for a book id.
func (m *MemoryStore) ListBookEvents(ctx context.Context, bookID int64) ([]domain.BookEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.BookEvent, 0)
	for _, e := range m.events {
		if e.BookID == bookID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return classify(ctx.Err()) }

func (m *MemoryStore) Close() error { return nil }

// appendEvent must be called with mu held.
func (m *MemoryStore) appendEvent(b domain.Book, action domain.EventAction) {
	payload, _ := json.Marshal(b)
	m.eventID++
	m.events = append(m.events, domain.BookEvent{
		ID:        m.eventID,
		BookID:    b.ID,
		Action:    action,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}
