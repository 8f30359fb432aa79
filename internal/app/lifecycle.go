package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/cache"
	"github.com/aarons-archive/skeleton-clique-bot/internal/scheduler"
	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
	"github.com/aarons-archive/skeleton-clique-bot/internal/tags"
)

// Startup steps, in order.
const (
	StepStore     = "store"
	StepCache     = "cache"
	StepTags      = "tags"
	StepScheduler = "scheduler"
)

// StartupError names the lifecycle step that aborted startup.
type StartupError struct {
	Step string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup step %q failed: %v", e.Step, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Deps configures Start. When Store is nil it is opened from StoreOptions.
type Deps struct {
	Store            store.Store
	StoreOptions     store.Options
	CacheOptions     cache.Options
	SchedulerOptions scheduler.Options
	TagOptions       tags.Options
	Deliverer        scheduler.Deliverer
	Log              *zap.Logger

	// FinalFlushTimeout bounds the shutdown flush. It is measured from
	// the flush itself, not from the Shutdown deadline. Default 5s.
	FinalFlushTimeout time.Duration
}

// Core is the running cache, tags, scheduler and the store behind them.
type Core struct {
	Store     store.Store
	Cache     *cache.Cache
	Tags      *tags.Manager
	Scheduler *scheduler.Scheduler

	log          *zap.Logger
	flushTimeout time.Duration
	shutdownOnce sync.Once
	shutdownErr  error
}

// Start connects the store, hydrates the cache and tags and arms pending
// reminders, strictly in that order. On failure everything opened so far is closed.
func Start(ctx context.Context, d Deps) (*Core, error) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	lc := log.Named("lifecycle")

	st := d.Store
	if st == nil {
		opts := d.StoreOptions
		if opts.Log == nil {
			opts.Log = log
		}
		sqlStore, err := store.Open(ctx, opts)
		if err != nil {
			return nil, &StartupError{Step: StepStore, Err: err}
		}
		st = sqlStore
	}
	lc.Info("store ready")

	c := cache.New(st, log, d.CacheOptions)
	if err := c.Load(ctx); err != nil {
		_ = st.Close()
		return nil, &StartupError{Step: StepCache, Err: err}
	}

	tm := tags.New(st, c, log, d.TagOptions)
	if err := tm.Load(ctx); err != nil {
		_ = st.Close()
		return nil, &StartupError{Step: StepTags, Err: err}
	}

	sch := scheduler.New(st, c, d.Deliverer, log, d.SchedulerOptions)
	if _, err := sch.ReloadPending(ctx); err != nil {
		_ = sch.Stop(ctx)
		_ = st.Close()
		return nil, &StartupError{Step: StepScheduler, Err: err}
	}

	lc.Info("ready")
	flushTimeout := d.FinalFlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}
	return &Core{Store: st, Cache: c, Tags: tm, Scheduler: sch, log: lc, flushTimeout: flushTimeout}, nil
}

// Shutdown stops the scheduler, flushes dirty fields and closes the store.
// Every step runs even when an earlier one fails; errors are joined.
// The scheduler gets half of ctx's remaining time; the flush runs on its
// own timeout so slow deliveries cannot starve it.
// Later calls return the first result.
func (c *Core) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		var errs []error

		stopCtx, cancelStop := schedulerBudget(ctx)
		defer cancelStop()
		if err := c.Scheduler.Stop(stopCtx); err != nil {
			c.log.Error("scheduler stop failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}

		flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), c.flushTimeout)
		defer cancelFlush()
		if err := c.Cache.Flush(flushCtx); err != nil {
			c.log.Error("final flush failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("flush cache: %w", err))
		}
		if err := c.Store.Close(); err != nil {
			c.log.Error("store close failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		c.shutdownErr = errors.Join(errs...)
		if c.shutdownErr == nil {
			c.log.Info("shutdown complete")
		}
	})
	return c.shutdownErr
}

func schedulerBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Until(deadline)/2)
}
