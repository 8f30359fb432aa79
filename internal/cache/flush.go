package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
	"github.com/aarons-archive/skeleton-clique-bot/internal/metrics"
	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
)

// FlushUser writes the user's dirty fields. Fields modified while the write
// was in flight stay dirty; on failure every snapshotted field stays dirty.
func (c *Cache) FlushUser(ctx context.Context, id int64) error {
	c.mu.RLock()
	e := c.users[id]
	c.mu.RUnlock()
	if e == nil {
		return nil
	}

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	fields, snap := e.dirty.snapshot(domain.AllUserFields)
	val := e.val
	e.mu.Unlock()
	if len(fields) == 0 {
		return nil
	}

	err := store.WithRetry(ctx, c.opts.Retry, func(ctx context.Context) error {
		return c.store.UpsertUserFields(ctx, val, fields)
	})
	if err != nil {
		c.log.Error("user flush failed", zap.Int64("id", id), zap.Any("fields", fields), zap.Error(err))
		return fmt.Errorf("%w: %w: user %d: %w", domain.ErrFlushFailed, domain.ErrStoreConnection, id, err)
	}

	e.mu.Lock()
	e.dirty.clear(snap)
	e.mu.Unlock()
	return nil
}

func (c *Cache) FlushGuild(ctx context.Context, id int64) error {
	c.mu.RLock()
	e := c.guilds[id]
	c.mu.RUnlock()
	if e == nil {
		return nil
	}

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	fields, snap := e.dirty.snapshot(domain.AllGuildFields)
	val := e.val
	e.mu.Unlock()
	if len(fields) == 0 {
		return nil
	}

	err := store.WithRetry(ctx, c.opts.Retry, func(ctx context.Context) error {
		return c.store.UpsertGuildFields(ctx, val, fields)
	})
	if err != nil {
		c.log.Error("guild flush failed", zap.Int64("id", id), zap.Any("fields", fields), zap.Error(err))
		return fmt.Errorf("%w: %w: guild %d: %w", domain.ErrFlushFailed, domain.ErrStoreConnection, id, err)
	}

	e.mu.Lock()
	e.dirty.clear(snap)
	e.mu.Unlock()
	return nil
}

// PersistUser registers the user if needed and writes it through, so rows
// that reference the user can be inserted.
func (c *Cache) PersistUser(ctx context.Context, id int64) error {
	c.userEntry(id)
	return c.FlushUser(ctx, id)
}

// Flush writes every dirty entry. Failures are joined; successful entries
// are not rolled back.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.RLock()
	userIDs := make([]int64, 0, len(c.users))
	for id := range c.users {
		userIDs = append(userIDs, id)
	}
	guildIDs := make([]int64, 0, len(c.guilds))
	for id := range c.guilds {
		guildIDs = append(guildIDs, id)
	}
	c.mu.RUnlock()

	var errs []error
	for _, id := range userIDs {
		if err := c.FlushUser(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range guildIDs {
		if err := c.FlushGuild(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	metrics.ObserveFlush(err)
	c.publishStats()
	return err
}

// Run flushes on every tick until ctx is done. Failed fields stay dirty and
// are retried on the next tick.
func (c *Cache) Run(ctx context.Context) {
	t := time.NewTicker(c.opts.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Flush(ctx); err != nil {
				c.log.Debug("periodic flush incomplete", zap.Error(err))
			}
		}
	}
}
