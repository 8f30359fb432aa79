package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
	"github.com/aarons-archive/skeleton-clique-bot/internal/metrics"
	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
)

// Deliverer sends a fired reminder to its channel.
// telegram.Notifier implements this.
type Deliverer interface {
	Deliver(ctx context.Context, r domain.Reminder) error
}

// Owners resolves reminder owners. The config cache implements this.
type Owners interface {
	Location(userID int64) *time.Location
	// PersistUser makes sure the owner row exists before a reminder references it.
	PersistUser(ctx context.Context, userID int64) error
}

// Store is the subset of the durable store the scheduler needs.
type Store interface {
	ListReminders(ctx context.Context) ([]domain.Reminder, error)
	InsertReminder(ctx context.Context, r domain.Reminder) (int64, error)
	UpdateReminder(ctx context.Context, r domain.Reminder) error
	DeleteReminder(ctx context.Context, id int64) (bool, error)
}

// stopGrace bounds the wait for cancelled deliveries in Stop.
const stopGrace = 500 * time.Millisecond

type Options struct {
	MaxConcurrent int64
	Retry         store.RetryPolicy
	Now           func() time.Time
}

type armed struct {
	r     domain.Reminder
	timer *time.Timer
	seq   uint64
}

// Scheduler keeps one timer per pending reminder and fires the delivery
// callback at the target instant.
type Scheduler struct {
	store   Store
	owners  Owners
	deliver Deliverer
	log     *zap.Logger
	opts    Options
	sem     *semaphore.Weighted

	// ctx is cancelled when Stop gives up waiting on in-flight deliveries.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	items   map[int64]*armed
	seq     uint64
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. Nothing is armed until Schedule or ReloadPending.
func New(st Store, owners Owners, deliver Deliverer, log *zap.Logger, opts Options) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 16
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   st,
		owners:  owners,
		deliver: deliver,
		log:     log.Named("scheduler"),
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		ctx:     ctx,
		cancel:  cancel,
		items:   make(map[int64]*armed),
	}
}

// Schedule persists a new reminder and arms its timer.
func (s *Scheduler) Schedule(ctx context.Context, d domain.Draft) (domain.Reminder, error) {
	now := s.opts.Now()
	if !d.FireAt.After(now) {
		return domain.Reminder{}, fmt.Errorf("%w: %s is not in the future", domain.ErrInvalidSchedule, d.FireAt.UTC().Format(time.RFC3339))
	}
	if !d.Repeat.Valid() {
		return domain.Reminder{}, fmt.Errorf("%w: unknown repeat policy %d", domain.ErrInvalidSchedule, int(d.Repeat))
	}

	if err := s.owners.PersistUser(ctx, d.OwnerID); err != nil {
		return domain.Reminder{}, err
	}

	r := domain.Reminder{
		OwnerID:     d.OwnerID,
		ChannelID:   d.ChannelID,
		CreatedAt:   now.UTC(),
		FireAt:      d.FireAt.UTC(),
		Content:     d.Content,
		MessageID:   d.MessageID,
		MessageLink: d.MessageLink,
		Repeat:      d.Repeat,
	}
	// Inserts are not retried: a lost response after commit would duplicate the row.
	id, err := s.store.InsertReminder(ctx, r)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("%w: insert reminder: %w", domain.ErrStoreConnection, err)
	}
	r.ID = id

	s.mu.Lock()
	s.armLocked(r)
	s.mu.Unlock()

	metrics.IncScheduled()
	s.log.Info("reminder scheduled",
		zap.Int64("id", r.ID),
		zap.Int64("owner", r.OwnerID),
		zap.Time("fireAt", r.FireAt),
		zap.Stringer("repeat", r.Repeat))
	return r, nil
}

// Cancel disarms the reminder and deletes its row. It reports whether
// anything was cancelled; an unknown or already fired id is (false, nil).
func (s *Scheduler) Cancel(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	_, known := s.items[id]
	s.disarmLocked(id)
	s.mu.Unlock()

	var removed bool
	err := store.WithRetry(ctx, s.opts.Retry, func(ctx context.Context) error {
		var err error
		removed, err = s.store.DeleteReminder(ctx, id)
		return err
	})
	if err != nil {
		return known, fmt.Errorf("%w: delete reminder %d: %w", domain.ErrStoreConnection, id, err)
	}
	if !known && !removed {
		s.log.Debug("cancel of unknown reminder", zap.Int64("id", id))
	}
	return known || removed, nil
}

// CancelOwned cancels id only when it belongs to ownerID.
func (s *Scheduler) CancelOwned(ctx context.Context, ownerID, id int64) (bool, error) {
	r, ok := s.Get(id)
	if !ok || r.OwnerID != ownerID {
		return false, nil
	}
	return s.Cancel(ctx, id)
}

// Reschedule moves an armed reminder to fireAt and, when content is not
// empty, replaces its text.
func (s *Scheduler) Reschedule(ctx context.Context, id int64, fireAt time.Time, content string) (domain.Reminder, error) {
	if !fireAt.After(s.opts.Now()) {
		return domain.Reminder{}, fmt.Errorf("%w: %s is not in the future", domain.ErrInvalidSchedule, fireAt.UTC().Format(time.RFC3339))
	}
	r, ok := s.Get(id)
	if !ok {
		return domain.Reminder{}, fmt.Errorf("reminder %d: %w", id, domain.ErrNotFound)
	}
	r.FireAt = fireAt.UTC()
	if content != "" {
		r.Content = content
	}

	err := store.WithRetry(ctx, s.opts.Retry, func(ctx context.Context) error {
		return s.store.UpdateReminder(ctx, r)
	})
	if err != nil {
		if store.IsNotFound(err) {
			return domain.Reminder{}, err
		}
		return domain.Reminder{}, fmt.Errorf("%w: update reminder %d: %w", domain.ErrStoreConnection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		// Cancelled or completed while the update was in flight.
		return domain.Reminder{}, fmt.Errorf("reminder %d: %w", id, domain.ErrNotFound)
	}
	s.armLocked(r)
	return r, nil
}

func (s *Scheduler) Get(id int64) (domain.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		return domain.Reminder{}, false
	}
	return a.r, true
}

// ListByOwner returns the owner's pending reminders, soonest first.
func (s *Scheduler) ListByOwner(ownerID int64) []domain.Reminder {
	s.mu.Lock()
	var res []domain.Reminder
	for _, a := range s.items {
		if a.r.OwnerID == ownerID {
			res = append(res, a.r)
		}
	}
	s.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].FireAt.Equal(res[j].FireAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].FireAt.Before(res[j].FireAt)
	})
	return res
}

// ReloadPending arms a timer for every stored reminder. Reminders whose
// fire time passed while the process was down fire immediately.
func (s *Scheduler) ReloadPending(ctx context.Context) (int, error) {
	rs, err := s.store.ListReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list reminders: %w", domain.ErrStoreConnection, err)
	}

	now := s.opts.Now()
	overdue := 0
	s.mu.Lock()
	for _, r := range rs {
		if !r.FireAt.After(now) {
			overdue++
		}
		s.armLocked(r)
	}
	s.mu.Unlock()

	s.log.Info("reminders reloaded", zap.Int("total", len(rs)), zap.Int("overdue", overdue))
	return len(rs), nil
}

// Armed returns the number of reminders held by the scheduler.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stop disarms every timer and waits for in-flight deliveries until ctx
// is done. Rows stay in the store for the next ReloadPending.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for id, a := range s.items {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(s.items, id)
	}
	metrics.SetArmed(0)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
	}

	// Out of time: cancel the deliveries still running and give their
	// row updates a moment to land before the store goes away.
	s.cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.log.Warn("deliveries still running after cancel")
	}
	return fmt.Errorf("scheduler stop: %w", ctx.Err())
}

// armLocked (re)arms r, superseding any previous timer for the same id.
func (s *Scheduler) armLocked(r domain.Reminder) {
	if s.stopped {
		return
	}
	if prev, ok := s.items[r.ID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	delay := r.FireAt.Sub(s.opts.Now())
	if delay < 0 {
		delay = 0
	}
	s.items[r.ID] = &armed{
		r:     r,
		seq:   seq,
		timer: time.AfterFunc(delay, func() { s.fire(r.ID, seq) }),
	}
	metrics.SetArmed(len(s.items))
}

func (s *Scheduler) disarmLocked(id int64) {
	a, ok := s.items[id]
	if !ok {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	delete(s.items, id)
	metrics.SetArmed(len(s.items))
}

// currentLocked reports whether seq is still the live arming of id.
func (s *Scheduler) currentLocked(id int64, seq uint64) (*armed, bool) {
	a, ok := s.items[id]
	if !ok || a.seq != seq {
		return nil, false
	}
	return a, true
}

func (s *Scheduler) fire(id int64, seq uint64) {
	s.mu.Lock()
	a, ok := s.currentLocked(id, seq)
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	a.timer = nil
	r := a.r
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		// Stopping; the row is still stored and fires on the next reload.
		return
	}
	err := s.safeDeliver(r)
	s.sem.Release(1)

	metrics.IncFired()
	if err != nil {
		metrics.IncDeliveryFailed()
		s.log.Warn("reminder delivery failed",
			zap.Int64("id", r.ID),
			zap.Int64("channel", r.ChannelID),
			zap.Error(err))
	}

	s.transition(r, seq)
}

func (s *Scheduler) safeDeliver(r domain.Reminder) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrDelivery, p)
		}
	}()
	if err := s.deliver.Deliver(s.ctx, r); err != nil {
		if errors.Is(err, domain.ErrDelivery) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrDelivery, err)
	}
	return nil
}

// transition completes a one-shot reminder or re-arms a recurring one.
// A cancel or reschedule that landed during delivery wins. After Stop the
// row is still brought up to date so a restart does not fire it twice.
func (s *Scheduler) transition(r domain.Reminder, seq uint64) {
	ctx := context.WithoutCancel(s.ctx)

	s.mu.Lock()
	_, live := s.currentLocked(r.ID, seq)
	if !live && !s.stopped {
		s.mu.Unlock()
		return
	}
	var next domain.Reminder
	if r.Repeat.Recurring() {
		next = r
		next.FireAt = s.nextFire(r)
		s.armLocked(next)
	} else {
		s.disarmLocked(r.ID)
	}
	s.mu.Unlock()

	if !r.Repeat.Recurring() {
		err := store.WithRetry(ctx, s.opts.Retry, func(ctx context.Context) error {
			_, err := s.store.DeleteReminder(ctx, r.ID)
			return err
		})
		if err != nil {
			s.log.Error("delete fired reminder failed", zap.Int64("id", r.ID), zap.Error(err))
		}
		return
	}

	err := store.WithRetry(ctx, s.opts.Retry, func(ctx context.Context) error {
		return s.store.UpdateReminder(ctx, next)
	})
	switch {
	case err == nil:
	case store.IsNotFound(err):
		s.log.Debug("recurring reminder row gone", zap.Int64("id", r.ID))
		s.mu.Lock()
		if a, ok := s.items[r.ID]; ok && a.r.FireAt.Equal(next.FireAt) {
			s.disarmLocked(r.ID)
		}
		s.mu.Unlock()
	default:
		s.log.Error("persist next fire time failed",
			zap.Int64("id", r.ID),
			zap.Time("next", next.FireAt),
			zap.Error(err))
	}
}

// nextFire advances from the previous target instant, skipping periods
// that are already in the past.
func (s *Scheduler) nextFire(r domain.Reminder) time.Time {
	loc := s.owners.Location(r.OwnerID)
	now := s.opts.Now()
	next := r.Repeat.Next(r.FireAt, loc)
	for !next.After(now) {
		next = r.Repeat.Next(next, loc)
	}
	return next
}
