package domain

import (
	"encoding/json"
	"time"
)

type Book struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Status string `json:"status"`
}

// BookPatch carries a partial update. Nil fields were omitted by the caller.
type BookPatch struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
	Status *string `json:"status"`
}

type EventAction string

const (
	ActionCreated EventAction = "created"
	ActionDeleted EventAction = "deleted"
)

// BookEvent is one entry of a book's history. Events outlive the book row.
type BookEvent struct {
	ID        int64           `json:"id"`
	BookID    int64           `json:"bookId"`
	Action    EventAction     `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
