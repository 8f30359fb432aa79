package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/cache"
	"github.com/aarons-archive/skeleton-clique-bot/internal/config"
	"github.com/aarons-archive/skeleton-clique-bot/internal/crypto"
	"github.com/aarons-archive/skeleton-clique-bot/internal/metrics"
	"github.com/aarons-archive/skeleton-clique-bot/internal/scheduler"
	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
	"github.com/aarons-archive/skeleton-clique-bot/internal/tags"
	"github.com/aarons-archive/skeleton-clique-bot/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	mux     *http.ServeMux
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv, mux: mux}, nil
}

// deps translates configuration into lifecycle dependencies.
func deps(cfg config.Config, log *zap.Logger, deliver scheduler.Deliverer) (Deps, error) {
	dialect, err := store.ParseDialect(cfg.DBDriver)
	if err != nil {
		return Deps{}, err
	}
	var enc crypto.Encryptor = crypto.Plaintext{}
	if cfg.TokenEncryptionKey != "" {
		aes, err := crypto.NewAESEncryptor(cfg.TokenEncryptionKey)
		if err != nil {
			return Deps{}, err
		}
		enc = aes
	}
	retry := store.RetryPolicy{Retries: cfg.FlushRetries, Base: cfg.FlushBackoff}

	return Deps{
		StoreOptions: store.Options{Dialect: dialect, DSN: cfg.DBDSN, Encryptor: enc, Log: log},
		CacheOptions: cache.Options{FlushInterval: cfg.FlushInterval, Retry: retry},
		SchedulerOptions: scheduler.Options{
			MaxConcurrent: cfg.MaxConcurrentDeliveries,
			Retry:         retry,
		},
		TagOptions:        tags.Options{Retry: retry},
		Deliverer:         deliver,
		Log:               log,
		FinalFlushTimeout: cfg.ShutdownTimeout,
	}, nil
}

// routes mounts health and metrics endpoints.
func routes(mux *http.ServeMux, core *Core) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := core.Store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", metrics.Handler())
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting bot",
		zap.String("driver", a.cfg.DBDriver),
		zap.String("http", a.cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	d, err := deps(a.cfg, a.log, telegram.NewNotifier(a.bot))
	if err != nil {
		return err
	}
	core, err := Start(ctx, d)
	if err != nil {
		a.log.Error("startup failed", zap.Error(err))
		return err
	}

	owners, err := a.cfg.Owners()
	if err != nil {
		_ = core.Shutdown(context.Background())
		return err
	}
	router := telegram.NewRouter(a.bot, a.log, telegram.Deps{
		Configs:   core.Cache,
		Reminders: core.Scheduler,
		Tags:      core.Tags,
		Owners:    owners,
	})

	routes(a.mux, core)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	flushCtx, stopFlush := context.WithCancel(context.Background())
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		core.Cache.Run(flushCtx)
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.bot.StopReceivingUpdates()
			stopFlush()
			<-flushDone

			shCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()

			coreErr := core.Shutdown(shCtx)
			if err := a.httpSrv.Shutdown(shCtx); err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			return coreErr

		case upd := <-updCh:
			router.HandleUpdate(ctx, upd)
		}
	}
}
