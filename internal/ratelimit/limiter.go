// Package ratelimit throttles catalog writes per client key.
package ratelimit

import "context"

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}
