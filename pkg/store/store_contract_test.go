package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"stocktake/pkg/domain"
)

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("empty list is not nil", func(t *testing.T) {
		s := newStore(t)
		books, err := s.ListBooks(context.Background())
		if err != nil {
			t.Fatalf("list books: %v", err)
		}
		if books == nil || len(books) != 0 {
			t.Fatalf("expected empty non-nil list, got %#v", books)
		}
	})

	t.Run("create then list", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		created, err := s.CreateBook(ctx, domain.Book{Title: "Dune", Author: "Herbert", Status: "available"})
		if err != nil {
			t.Fatalf("create book: %v", err)
		}
		if created.ID <= 0 {
			t.Fatalf("expected assigned id, got %d", created.ID)
		}
		books, err := s.ListBooks(ctx)
		if err != nil {
			t.Fatalf("list books: %v", err)
		}
		want := domain.Book{ID: created.ID, Title: "Dune", Author: "Herbert", Status: "available"}
		if len(books) != 1 || books[0] != want {
			t.Fatalf("list = %#v, want [%#v]", books, want)
		}
	})

	t.Run("list is ordered by increasing id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, title := range []string{"c", "a", "b", "d"} {
			if _, err := s.CreateBook(ctx, domain.Book{Title: title, Author: "x"}); err != nil {
				t.Fatalf("create %s: %v", title, err)
			}
		}
		books, err := s.ListBooks(ctx)
		if err != nil {
			t.Fatalf("list books: %v", err)
		}
		if len(books) != 4 {
			t.Fatalf("expected 4 books, got %d", len(books))
		}
		for i := 1; i < len(books); i++ {
			if books[i].ID <= books[i-1].ID {
				t.Fatalf("ids not strictly increasing: %d then %d", books[i-1].ID, books[i].ID)
			}
		}
	})

	t.Run("delete missing leaves table unchanged", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.CreateBook(ctx, domain.Book{Title: "Dune", Author: "Herbert"}); err != nil {
			t.Fatalf("create book: %v", err)
		}
		if err := s.DeleteBook(ctx, 999); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		books, err := s.ListBooks(ctx)
		if err != nil {
			t.Fatalf("list books: %v", err)
		}
		if len(books) != 1 {
			t.Fatalf("expected table unchanged, got %d books", len(books))
		}
	})

	t.Run("delete removes exactly one row", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first, err := s.CreateBook(ctx, domain.Book{Title: "Dune", Author: "Herbert"})
		if err != nil {
			t.Fatalf("create first: %v", err)
		}
		second, err := s.CreateBook(ctx, domain.Book{Title: "Emma", Author: "Austen"})
		if err != nil {
			t.Fatalf("create second: %v", err)
		}
		if err := s.DeleteBook(ctx, first.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		books, err := s.ListBooks(ctx)
		if err != nil {
			t.Fatalf("list books: %v", err)
		}
		if len(books) != 1 || books[0].ID != second.ID {
			t.Fatalf("expected only book %d left, got %#v", second.ID, books)
		}
		if err := s.DeleteBook(ctx, first.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second delete expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ids are not reused after delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first, err := s.CreateBook(ctx, domain.Book{Title: "Dune", Author: "Herbert"})
		if err != nil {
			t.Fatalf("create first: %v", err)
		}
		if err := s.DeleteBook(ctx, first.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		next, err := s.CreateBook(ctx, domain.Book{Title: "Dune", Author: "Herbert"})
		if err != nil {
			t.Fatalf("create next: %v", err)
		}
		if next.ID <= first.ID {
			t.Fatalf("id reused or went backwards: first=%d next=%d", first.ID, next.ID)
		}
	})

	t.Run("history records create and delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		b, err := s.CreateBook(ctx, domain.Book{Title: "Dune", Author: "Herbert", Status: "available"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.DeleteBook(ctx, b.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		events, err := s.ListBookEvents(ctx, b.ID)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].Action != domain.ActionCreated || events[1].Action != domain.ActionDeleted {
			t.Fatalf("unexpected actions: %q, %q", events[0].Action, events[1].Action)
		}
		var snapshot domain.Book
		if err := json.Unmarshal(events[1].Payload, &snapshot); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if snapshot != b {
			t.Fatalf("deleted payload = %#v, want %#v", snapshot, b)
		}
		if events[0].CreatedAt.IsZero() {
			t.Fatalf("expected event timestamp")
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
}
