package ratelimit

import "context"

// RateLimiter gates outbound collaborator calls per operation key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

// AllowAll never blocks. Used when no limiter backend is configured and in
// tests.
type AllowAll struct{}

var _ RateLimiter = AllowAll{}

func (AllowAll) Allow(context.Context, string) (bool, error) { return true, nil }
func (AllowAll) Wait(context.Context, string) error          { return nil }
