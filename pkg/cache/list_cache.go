// Package cache keeps a Redis copy of the catalog list response.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"stocktake/pkg/domain"
)

// ListCache stores the full book list under a generation number. Writers bump
// the generation instead of deleting, so a reader that loaded the database
// before a write can only fill a generation nobody reads anymore.
type ListCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewListCache builds a cache on client. A non-positive ttl defaults to 30s.
func NewListCache(client *redis.Client, prefix string, ttl time.Duration) (*ListCache, error) {
	if client == nil {
		return nil, errors.New("list cache redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "stocktake:catalog"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ListCache{client: client, prefix: prefix, ttl: ttl}, nil
}

// Get returns the cached list for the current generation. On a miss it still
// returns the generation the caller should pass to Set.
func (c *ListCache) Get(ctx context.Context) ([]domain.Book, int64, bool, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, fmt.Errorf("read list generation: %w", err)
	}
	raw, err := c.client.Get(ctx, c.listKey(gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, fmt.Errorf("read cached list: %w", err)
	}
	var books []domain.Book
	if err := json.Unmarshal(raw, &books); err != nil {
		return nil, gen, false, fmt.Errorf("decode cached list: %w", err)
	}
	return books, gen, true, nil
}

// Set stores books under generation gen.
func (c *ListCache) Set(ctx context.Context, gen int64, books []domain.Book) error {
	raw, err := json.Marshal(books)
	if err != nil {
		return fmt.Errorf("encode list: %w", err)
	}
	if err := c.client.Set(ctx, c.listKey(gen), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached list: %w", err)
	}
	return nil
}

// Invalidate moves readers to a fresh generation.
func (c *ListCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("bump list generation: %w", err)
	}
	return nil
}

func (c *ListCache) generationKey() string {
	return c.prefix + ":books:gen"
}

func (c *ListCache) listKey(gen int64) string {
	return fmt.Sprintf("%s:books:list:%d", c.prefix, gen)
}
