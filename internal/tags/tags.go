// Package tags keeps user-defined text snippets in memory, written through
// to the store on every change.
package tags

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
)

// Store is the subset of the durable store tags need.
type Store interface {
	LoadTags(ctx context.Context) ([]domain.Tag, error)
	InsertTag(ctx context.Context, t domain.Tag) error
	UpdateTagContent(ctx context.Context, name, content string) error
	DeleteTag(ctx context.Context, name string) (bool, error)
}

// Owners makes sure the owner row exists before a tag references it.
type Owners interface {
	PersistUser(ctx context.Context, userID int64) error
}

type Options struct {
	Retry store.RetryPolicy
	Now   func() time.Time
}

// Manager serves tag lookups from memory. Mutations are serialized and
// reach the store before memory changes.
type Manager struct {
	store  Store
	owners Owners
	log    *zap.Logger
	opts   Options

	writeMu sync.Mutex // one mutation at a time, held across store I/O

	mu   sync.RWMutex
	tags map[string]domain.Tag
}

func New(st Store, owners Owners, log *zap.Logger, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:  st,
		owners: owners,
		log:    log.Named("tags"),
		opts:   opts,
		tags:   make(map[string]domain.Tag),
	}
}

// Load hydrates the manager. Failure is fatal for startup.
func (m *Manager) Load(ctx context.Context) error {
	list, err := m.store.LoadTags(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w: tags: %w", domain.ErrLoadFailed, domain.ErrStoreConnection, err)
	}
	m.mu.Lock()
	for _, t := range list {
		m.tags[t.Name] = t
	}
	m.mu.Unlock()

	m.log.Info("tags loaded", zap.Int("tags", len(list)))
	return nil
}

// Get returns the tag called name, following an alias to its target.
func (m *Manager) Get(name string) (domain.Tag, bool) {
	name, err := domain.NormalizeTagName(name)
	if err != nil {
		return domain.Tag{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tags[name]
	if ok && t.IsAlias() {
		t, ok = m.tags[t.Alias]
	}
	return t, ok
}

// Create stores a new original tag.
func (m *Manager) Create(ctx context.Context, ownerID int64, name, content string) (domain.Tag, error) {
	name, err := domain.NormalizeTagName(name)
	if err != nil {
		return domain.Tag{}, err
	}
	if content, err = domain.ValidateTagContent(content); err != nil {
		return domain.Tag{}, err
	}
	return m.insert(ctx, domain.Tag{Name: name, OwnerID: ownerID, Content: content})
}

// CreateAlias stores name as an alias of target. Aliasing an alias points
// at the alias's target, so chains are never longer than one hop.
func (m *Manager) CreateAlias(ctx context.Context, ownerID int64, name, target string) (domain.Tag, error) {
	name, err := domain.NormalizeTagName(name)
	if err != nil {
		return domain.Tag{}, err
	}
	orig, ok := m.Get(target)
	if !ok {
		return domain.Tag{}, fmt.Errorf("tag %q: %w", target, domain.ErrNotFound)
	}
	return m.insert(ctx, domain.Tag{Name: name, OwnerID: ownerID, Alias: orig.Name})
}

func (m *Manager) insert(ctx context.Context, t domain.Tag) (domain.Tag, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	_, exists := m.tags[t.Name]
	_, targetOK := m.tags[t.Alias]
	m.mu.RUnlock()
	if exists {
		return domain.Tag{}, fmt.Errorf("%w: %s", domain.ErrTagExists, t.Name)
	}
	if t.IsAlias() && !targetOK {
		return domain.Tag{}, fmt.Errorf("tag %q: %w", t.Alias, domain.ErrNotFound)
	}

	if err := m.owners.PersistUser(ctx, t.OwnerID); err != nil {
		return domain.Tag{}, err
	}
	t.CreatedAt = m.opts.Now().UTC().Truncate(time.Second)
	// Inserts are not retried: a lost response after commit would report a false conflict.
	if err := m.store.InsertTag(ctx, t); err != nil {
		return domain.Tag{}, fmt.Errorf("%w: insert tag %q: %w", domain.ErrStoreConnection, t.Name, err)
	}

	m.mu.Lock()
	m.tags[t.Name] = t
	m.mu.Unlock()
	m.log.Info("tag created",
		zap.String("name", t.Name),
		zap.Int64("owner", t.OwnerID),
		zap.String("alias", t.Alias))
	return t, nil
}

// Edit replaces the content of an original tag owned by ownerID.
func (m *Manager) Edit(ctx context.Context, ownerID int64, name, content string) (domain.Tag, error) {
	content, err := domain.ValidateTagContent(content)
	if err != nil {
		return domain.Tag{}, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	t, err := m.owned(ownerID, name)
	if err != nil {
		return domain.Tag{}, err
	}
	if t.IsAlias() {
		return domain.Tag{}, fmt.Errorf("%w: %s points at %s", domain.ErrTagIsAlias, t.Name, t.Alias)
	}

	err = store.WithRetry(ctx, m.opts.Retry, func(ctx context.Context) error {
		return m.store.UpdateTagContent(ctx, t.Name, content)
	})
	if err != nil {
		if store.IsNotFound(err) {
			return domain.Tag{}, err
		}
		return domain.Tag{}, fmt.Errorf("%w: update tag %q: %w", domain.ErrStoreConnection, t.Name, err)
	}

	t.Content = content
	m.mu.Lock()
	m.tags[t.Name] = t
	m.mu.Unlock()
	return t, nil
}

// Delete removes a tag owned by ownerID. Deleting an original also removes
// every alias pointing at it; the count includes them.
func (m *Manager) Delete(ctx context.Context, ownerID int64, name string) (int, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	t, err := m.owned(ownerID, name)
	if err != nil {
		return 0, err
	}

	err = store.WithRetry(ctx, m.opts.Retry, func(ctx context.Context) error {
		_, err := m.store.DeleteTag(ctx, t.Name)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: delete tag %q: %w", domain.ErrStoreConnection, t.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tags, t.Name)
	removed := 1
	if !t.IsAlias() {
		for n, other := range m.tags {
			if other.Alias == t.Name {
				delete(m.tags, n)
				removed++
			}
		}
	}
	return removed, nil
}

// owned returns the tag called name when ownerID owns it.
func (m *Manager) owned(ownerID int64, name string) (domain.Tag, error) {
	name, err := domain.NormalizeTagName(name)
	if err != nil {
		return domain.Tag{}, err
	}
	m.mu.RLock()
	t, ok := m.tags[name]
	m.mu.RUnlock()
	if !ok {
		return domain.Tag{}, fmt.Errorf("tag %q: %w", name, domain.ErrNotFound)
	}
	if t.OwnerID != ownerID {
		return domain.Tag{}, fmt.Errorf("%w: %s", domain.ErrNotTagOwner, name)
	}
	return t, nil
}

// ListByOwner returns the owner's tags and aliases by name.
func (m *Manager) ListByOwner(ownerID int64) []domain.Tag {
	m.mu.RLock()
	var res []domain.Tag
	for _, t := range m.tags {
		if t.OwnerID == ownerID {
			res = append(res, t)
		}
	}
	m.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tags)
}
