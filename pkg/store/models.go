package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"stocktake/pkg/domain"
)

// GORM models used for persistence.
type BookModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Title  string `gorm:"type:varchar(255);not null"`
	Author string `gorm:"type:varchar(255);not null"`
	Status string `gorm:"type:varchar(100)"`
}

func (BookModel) TableName() string { return "books" }

type BookEventModel struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	BookID    int64          `gorm:"not null;index"`
	Action    string         `gorm:"type:varchar(32);not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (BookEventModel) TableName() string { return "book_events" }

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:     b.ID,
		Title:  b.Title,
		Author: b.Author,
		Status: b.Status,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:     m.ID,
		Title:  m.Title,
		Author: m.Author,
		Status: m.Status,
	}
}

func newEventModel(book domain.Book, action domain.EventAction) (BookEventModel, error) {
	payload, err := json.Marshal(book)
	if err != nil {
		return BookEventModel{}, fmt.Errorf("encode event payload: %w", err)
	}
	return BookEventModel{
		BookID:    book.ID,
		Action:    string(action),
		Payload:   datatypes.JSON(payload),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func eventFromModel(m BookEventModel) domain.BookEvent {
	return domain.BookEvent{
		ID:        m.ID,
		BookID:    m.BookID,
		Action:    domain.EventAction(m.Action),
		Payload:   json.RawMessage(m.Payload),
		CreatedAt: m.CreatedAt,
	}
}
