package store

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

// RetryPolicy bounds retries of a store write.
type RetryPolicy struct {
	Retries uint64        // extra attempts after the first
	Base    time.Duration // first backoff, doubled per attempt
}

// WithRetry runs fn, retrying with exponential backoff while it fails.
// Errors that retrying cannot fix (unknown fields, missing rows) return at once.
func WithRetry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := retry.WithMaxRetries(p.Retries, retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrUnknownField) || IsNotFound(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}
