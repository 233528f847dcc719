// Package app wires settings, catalog, broadcaster, scheduler, command
// router, chat adapter and observability into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promobot/internal/broadcast"
	"promobot/internal/catalog"
	"promobot/internal/config"
	"promobot/internal/observability"
	"promobot/internal/router"
	rtsup "promobot/internal/runtime/supervisor"
	"promobot/internal/scheduler"
	"promobot/internal/settings"
	kit "promobot/internal/transport"
	telegram "promobot/internal/transport/telegram/adapter"
	logx "promobot/pkg/logx"
)

type Option func(*options)

type options struct {
	adapter kit.Adapter
	clock   scheduler.Clock
}

// WithAdapter replaces the Telegram adapter; used by tests and dry runs.
func WithAdapter(a kit.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithClock sets the scheduler clock.
func WithClock(c scheduler.Clock) Option { return func(o *options) { o.clock = c } }

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	sup  *rtsup.Supervisor

	adapter kit.Adapter
	target  kit.ChatTarget
	store   settings.Store
	catalog *catalog.Catalog
	metrics *observability.Metrics
	bc      *broadcast.Broadcaster
	sched   *scheduler.Scheduler
	router  *router.Router
	disp    *router.Dispatcher
	obs     *observability.Server

	updates chan kit.Update
	started time.Time
}

// New builds the app from a validated config. cfgm may be nil when the
// process runs without a config file; hot reload is then disabled.
func New(cfgm *config.ConfigManager, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	logSvc, log := logx.New(cfg.LogConfig())
	a := &App{cfgm: cfgm, cfg: cfg, logs: logSvc, log: log.With(logx.String("comp", "app")), updates: make(chan kit.Update, 64)}

	target, err := kit.ParseChatTarget(cfg.Telegram.Channel)
	if err != nil {
		return nil, a.abort(err)
	}
	a.target = target

	a.adapter = o.adapter
	if a.adapter == nil {
		ad, err := telegram.New(cfg.AdapterConfig(), log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, a.abort(fmt.Errorf("telegram: %w", err))
		}
		a.adapter = ad
	}

	if p := strings.TrimSpace(cfg.Catalog.Path); p != "" {
		cat, err := catalog.Load(p)
		if err != nil {
			return nil, a.abort(err)
		}
		a.catalog = cat
	} else {
		a.catalog = catalog.Default()
	}

	store, err := settings.Open(cfg.SettingsStoreConfig(), log.With(logx.String("comp", "settings")))
	if err != nil {
		return nil, a.abort(err)
	}
	a.store = store

	a.metrics = observability.NewMetrics()
	a.bc = broadcast.New(cfg.BroadcastConfig(), a.adapter, target, a.catalog, log.With(logx.String("comp", "broadcast")), a.metrics)

	schedOpts := []scheduler.Option{scheduler.WithMetrics(a.metrics)}
	if o.clock != nil {
		schedOpts = append(schedOpts, scheduler.WithClock(o.clock))
	}
	a.sched = scheduler.New(func(ctx context.Context) error {
		return a.bc.BroadcastAll(ctx).Err()
	}, log, schedOpts...)

	a.router = router.New(a.store, a.sched, a.bc, log)
	a.disp = router.NewDispatcher(a.router, a.adapter, cfg.Telegram.OwnerUserIDs, log)
	a.obs = observability.NewServer(cfg.ObservabilityConfig(), a.metrics, a.Status, log)
	return a, nil
}

// abort releases what New opened so far and returns err.
func (a *App) abort(err error) error {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return err
}

// Start arms the broadcast job with the persisted interval and starts
// command handling, hot reload and the observability server.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.started = time.Now()

	st := a.store.Load(ctx)
	if err := a.sched.Start(st.Interval()); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.log.Info("bot started; auto-post armed",
		logx.Int("interval_hours", st.IntervalHours),
		logx.String("channel", a.target.String()),
		logx.Int("catalog_items", a.catalog.Len()),
	)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	a.sup.Go("commands", func(c context.Context) error {
		return a.disp.Run(c, a.updates)
	})

	if err := a.obs.Start(a.sup.Context()); err != nil {
		// Observability is optional; the bot keeps running without it.
		a.log.Warn("observability server not started", logx.Err(err))
	}

	a.startConfigReload()
	return nil
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop shuts everything down in reverse dependency order. ctx bounds the wait
// for an in-flight broadcast pass.
func (a *App) Stop(ctx context.Context) error {
	start := time.Now()
	a.log.Info("stopping")

	var errs []error
	if err := a.sched.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := a.adapter.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("adapter: %w", err))
	}
	if err := a.obs.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("settings: %w", err))
	}
	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// Status is the /status document of the observability server.
type Status struct {
	Started       time.Time          `json:"started"`
	Channel       string             `json:"channel"`
	IntervalHours int                `json:"interval_hours"`
	CatalogItems  int                `json:"catalog_items"`
	Scheduler     scheduler.Snapshot `json:"scheduler"`
	Supervisor    rtsup.Counters     `json:"supervisor"`
}

func (a *App) Status() any {
	st := Status{
		Started:       a.started,
		Channel:       a.target.String(),
		IntervalHours: a.store.Load(context.Background()).IntervalHours,
		CatalogItems:  a.catalog.Len(),
		Scheduler:     a.sched.Snapshot(),
	}
	if a.sup != nil {
		st.Supervisor = a.sup.Counters()
	}
	return st
}
