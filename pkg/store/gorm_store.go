package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"stocktake/pkg/domain"
)

const migrateLockID int64 = 51203417

// Compatible with tables created by earlier deployments (id SERIAL).
const createBooksTableSQL = `
CREATE TABLE IF NOT EXISTS books (
	id BIGSERIAL PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	author VARCHAR(255) NOT NULL,
	status VARCHAR(100)
)`

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// NewGormStore opens a pooled connection and runs the schema migration.
func NewGormStore(dsn string, options ...Option) (*GormStore, error) {
	opts := resolveOptions(options)

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, classify(fmt.Errorf("open db: %w", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec(createBooksTableSQL).Error; err != nil {
			return fmt.Errorf("create books table: %w", err)
		}
		if err := tx.AutoMigrate(&BookEventModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		_ = sqlDB.Close()
		return nil, classify(err)
	}
	return &GormStore{db: db, sqlDB: sqlDB}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db.WithContext(ctx))
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateBook inserts the row and its "created" event in one transaction.
func (s *GormStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	model := bookToModel(b)
	model.ID = 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		event, err := newEventModel(bookFromModel(model), domain.ActionCreated)
		if err != nil {
			return err
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return domain.Book{}, classify(err)
	}
	return bookFromModel(model), nil
}

// ListBooks returns all books ordered by id.
func (s *GormStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// DeleteBook removes the row, capturing it with RETURNING for the event payload.
func (s *GormStore) DeleteBook(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model BookModel
		res := tx.Clauses(clause.Returning{}).Where("id = ?", id).Delete(&model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if model.ID == 0 {
			model.ID = id
		}
		event, err := newEventModel(bookFromModel(model), domain.ActionDeleted)
		if err != nil {
			return err
		}
		return tx.Create(&event).Error
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return classify(err)
}

// ListBookEvents returns events for a book id, oldest first.
func (s *GormStore) ListBookEvents(ctx context.Context, bookID int64) ([]domain.BookEvent, error) {
	var models []BookEventModel
	if err := s.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	events := make([]domain.BookEvent, 0, len(models))
	for _, m := range models {
		events = append(events, eventFromModel(m))
	}
	return events, nil
}

// Ping checks that a pooled connection can reach the database.
func (s *GormStore) Ping(ctx context.Context) error {
	return classify(s.sqlDB.PingContext(ctx))
}

// Close releases every pooled connection.
func (s *GormStore) Close() error {
	return s.sqlDB.Close()
}
