// Package cache keeps every known user and guild configuration in memory
// and writes modified fields back to the store.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
	"github.com/aarons-archive/skeleton-clique-bot/internal/metrics"
	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
)

// Store is the subset of the durable store the cache needs.
type Store interface {
	LoadUsers(ctx context.Context) ([]domain.UserConfig, error)
	LoadGuilds(ctx context.Context) ([]domain.GuildConfig, error)
	UpsertUserFields(ctx context.Context, u domain.UserConfig, fields []domain.UserField) error
	UpsertGuildFields(ctx context.Context, g domain.GuildConfig, fields []domain.GuildField) error
}

type Options struct {
	FlushInterval time.Duration
	Retry         store.RetryPolicy
	Now           func() time.Time
}

type userEntry struct {
	flushMu sync.Mutex // serializes writes of this entry; never taken by readers
	mu      sync.Mutex
	val     domain.UserConfig
	dirty   dirtySet[domain.UserField]
	// registered is the dirty generation of the default registration;
	// zero for entries that came from the store.
	registered uint64
}

type guildEntry struct {
	flushMu    sync.Mutex
	mu         sync.Mutex
	val        domain.GuildConfig
	dirty      dirtySet[domain.GuildField]
	registered uint64
}

// mergeStored adopts the stored row, keeping only the fields set in
// memory since registration. Registration defaults are discarded.
func (e *userEntry) mergeStored(stored domain.UserConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range domain.AllUserFields {
		if e.dirty.markedAfter(f, e.registered) {
			_ = applyUserField(&stored, f, userFieldValue(e.val, f))
		}
	}
	e.val = stored
	e.dirty.forget(e.registered)
	e.registered = 0
}

func (e *guildEntry) mergeStored(stored domain.GuildConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range domain.AllGuildFields {
		if e.dirty.markedAfter(f, e.registered) {
			_ = applyGuildField(&stored, f, guildFieldValue(e.val, f))
		}
	}
	e.val = stored
	e.dirty.forget(e.registered)
	e.registered = 0
}

func (e *userEntry) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty.len()
}

func (e *guildEntry) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty.len()
}

// Cache is the in-memory authority for user and guild configuration.
// Reads never touch the store; writes mark fields dirty and return.
type Cache struct {
	store Store
	log   *zap.Logger
	opts  Options

	mu     sync.RWMutex
	users  map[int64]*userEntry
	guilds map[int64]*guildEntry
}

func New(st Store, log *zap.Logger, opts Options) *Cache {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		store:  st,
		log:    log.Named("cache"),
		opts:   opts,
		users:  make(map[int64]*userEntry),
		guilds: make(map[int64]*guildEntry),
	}
}

// Load hydrates the cache from the store. Failure is fatal for startup
// and wraps domain.ErrLoadFailed.
func (c *Cache) Load(ctx context.Context) error {
	users, err := c.store.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w: users: %w", domain.ErrLoadFailed, domain.ErrStoreConnection, err)
	}
	guilds, err := c.store.LoadGuilds(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w: guilds: %w", domain.ErrLoadFailed, domain.ErrStoreConnection, err)
	}

	c.mu.Lock()
	for _, u := range users {
		if e, ok := c.users[u.ID]; ok {
			e.mergeStored(u) // fields set since registration win
			continue
		}
		c.users[u.ID] = &userEntry{val: u}
	}
	for _, g := range guilds {
		if e, ok := c.guilds[g.ID]; ok {
			e.mergeStored(g)
			continue
		}
		c.guilds[g.ID] = &guildEntry{val: g}
	}
	c.mu.Unlock()

	c.log.Info("cache loaded", zap.Int("users", len(users)), zap.Int("guilds", len(guilds)))
	c.publishStats()
	return nil
}

func (c *Cache) userEntry(id int64) *userEntry {
	c.mu.RLock()
	e := c.users[id]
	c.mu.RUnlock()
	if e != nil {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e = c.users[id]; e != nil {
		return e
	}
	e = &userEntry{val: domain.NewUserConfig(id, c.opts.Now())}
	e.dirty.mark(domain.AllUserFields...)
	e.registered = e.dirty.generation()
	c.users[id] = e
	return e
}

func (c *Cache) guildEntry(id int64) *guildEntry {
	c.mu.RLock()
	e := c.guilds[id]
	c.mu.RUnlock()
	if e != nil {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e = c.guilds[id]; e != nil {
		return e
	}
	e = &guildEntry{val: domain.NewGuildConfig(id)}
	e.dirty.mark(domain.AllGuildFields...)
	e.registered = e.dirty.generation()
	c.guilds[id] = e
	return e
}

// User returns a copy of the user's configuration, registering defaults
// for an unknown id.
func (c *Cache) User(id int64) domain.UserConfig {
	e := c.userEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.val
}

// LookupUser returns the user only when already known.
func (c *Cache) LookupUser(id int64) (domain.UserConfig, bool) {
	c.mu.RLock()
	e := c.users[id]
	c.mu.RUnlock()
	if e == nil {
		return domain.UserConfig{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.val, true
}

// Guild returns a copy of the guild's configuration, registering defaults
// for an unknown id.
func (c *Cache) Guild(id int64) domain.GuildConfig {
	e := c.guildEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.val
}

// Location returns the zone of a known user, UTC otherwise.
func (c *Cache) Location(userID int64) *time.Location {
	u, ok := c.LookupUser(userID)
	if !ok {
		return time.UTC
	}
	return u.Location()
}

// IsDirty reports whether a user field awaits write-back.
func (c *Cache) IsDirty(userID int64, f domain.UserField) bool {
	c.mu.RLock()
	e := c.users[userID]
	c.mu.RUnlock()
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty.has(f)
}

// Stats counts entries and entries with pending writes.
func (c *Cache) Stats() (users, guilds, dirty int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.users {
		if e.pending() > 0 {
			dirty++
		}
	}
	for _, e := range c.guilds {
		if e.pending() > 0 {
			dirty++
		}
	}
	return len(c.users), len(c.guilds), dirty
}

func (c *Cache) publishStats() {
	metrics.SetCacheStats(c.Stats())
}
