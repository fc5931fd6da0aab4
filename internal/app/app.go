// Package app assembles aquabot from its config and runs it until stopped.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"aquabot/internal/bot"
	"aquabot/internal/config"
	"aquabot/internal/confirm"
	"aquabot/internal/dedup"
	"aquabot/internal/engine"
	"aquabot/internal/links"
	"aquabot/internal/notifier"
	rtsup "aquabot/internal/runtime/supervisor"
	"aquabot/internal/storage"
	"aquabot/internal/task/scheduler"
	kit "aquabot/internal/transport"
	telegram "aquabot/internal/transport/telegram/adapter"
	"aquabot/internal/transport/telegram/router"
	"aquabot/internal/webhook"
	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
)

const recheckJob = "links.recheck"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor
	set  settings

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	rdb   redis.UniversalClient

	adapter *telegram.Adapter
	router  *router.Router
	notif   *notifier.Service
	engine  *engine.Engine
	sched   *scheduler.Service
	links   *links.Service
	web     *webhook.Server
	sd      *systemdNotifier

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	if err := config.LoadDotenv(cfgPath); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	set, err := mapSettings(cfg)
	if err != nil {
		return nil, err
	}

	// The Telegram sink needs the adapter, which needs a logger: start
	// without a sender and attach it once the adapter exists.
	logs, log := logx.New(set.Log, nil)
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, set: set, log: log, logs: logs, updates: make(chan kit.Update, 256)}
	if err := a.build(); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	set, log := a.set, a.log

	ad, err := telegram.New(set.Telegram, log)
	if err != nil {
		return err
	}
	a.adapter = ad
	a.logs.SetSender(ad.SendLog)

	store, err := storage.Open(set.Storage, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = store

	cfg := a.cfgm.Get()
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		perr := a.rdb.Ping(pctx).Err()
		cancel()
		if perr != nil {
			log.Warn("redis ping failed", logx.String("addr", addr), logx.Err(perr))
		}
	}

	stores, err := a.dedupStores()
	if err != nil {
		return err
	}

	yc := yclients.New(set.Yclients, log)
	a.notif = notifier.New(set.Notifier, ad, log)
	a.links = links.New(set.Links, store, yc, a.notif, log)
	a.engine = engine.New(set.Engine, stores, a.notif, a.links, log)
	a.sched = scheduler.New(set.Scheduler, log)
	a.web = webhook.New(set.Webhook, a.engine, log)

	var locker confirm.Locker
	if a.rdb != nil {
		locker = confirm.NewRedisLocker(a.rdb, set.DedupPrefix+"lock:", set.LockTTL)
	}
	coord := confirm.New(set.Confirm, yc, locker, log)

	a.router = router.New(router.Config{
		AdminChatID:     set.AdminChat.ChatID,
		AdminUserIDs:    set.AdminUsers,
		LegacyCallbacks: map[string]string{"rec_confirm": "rec:confirm"},
	}, ad, log)
	handlers := bot.New(bot.Deps{
		CompanyID: set.Links.CompanyID,
		AdminChat: set.AdminChat,
		Location:  set.Location,
		Links:     a.links,
		Records:   yc,
		Confirm:   coord,
		Store:     store,
		Notify:    a.notif,
		Recheck:   func() bool { return a.sched.RunNow(recheckJob) },
		Log:       log,
	})
	a.router.SetRegistry(handlers.Registry(a.router))
	a.sd = newSystemdNotifier(log)
	return nil
}

// dedupStores picks the ledger backend. Memory keeps separate ledgers so
// admin and client windows sweep independently.
func (a *App) dedupStores() (engine.Stores, error) {
	switch a.set.DedupBackend {
	case "memory":
		return engine.MemoryStores(), nil
	case "redis":
		if a.rdb == nil {
			return engine.Stores{}, fmt.Errorf("dedup.backend=redis needs redis.addr")
		}
		s := dedup.NewRedis(a.rdb, a.set.DedupPrefix+"dedup:")
		return engine.Stores{Rules: s, Client: s}, nil
	case "sqlite":
		s := dedup.NewSQL(a.store)
		return engine.Stores{Rules: s, Client: s}, nil
	}
	return engine.Stores{}, fmt.Errorf("unknown dedup.backend %q", a.set.DedupBackend)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError())
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapSettings(cfg)
		return err
	})

	a.notif.Start(run)
	a.sup.GoRestart("engine", func(c context.Context) error {
		if err := a.engine.Run(c); err != nil && c.Err() == nil {
			return err
		}
		return nil
	})

	if err := a.sched.AddSchedule(recheckJob, a.set.RecheckInterval, time.Minute, a.recheck); err != nil {
		return err
	}
	a.sched.Start(run)

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go("router", func(c context.Context) error { return a.router.Run(c, a.updates) })
	a.sup.Go("router.menu", func(c context.Context) error {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.router.PublishMenu(mctx); err != nil {
			a.log.Warn("menu publish failed", logx.Err(err))
		}
		return nil
	})

	// Webhook last: events arriving before the engine runs would queue anyway,
	// but a bind failure should stop startup.
	if err := a.web.Start(run); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}

	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sd.Ready()
	a.sup.Go("systemd.watchdog", a.sd.Watchdog)

	a.log.Info("app started",
		logx.String("webhook", a.web.Addr()),
		logx.String("dedup", a.set.DedupBackend),
		logx.String("recheck", a.set.RecheckInterval))
	return nil
}

func (a *App) recheck(ctx context.Context) error {
	n, err := a.links.Recheck(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		a.log.Info("pending links completed", logx.Int("count", n))
	}
	return nil
}

// reloadLoop applies hot-reloadable sections and warns about the rest.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			// Coalesce bursts.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	set, err := mapSettings(next)
	if err != nil {
		a.log.Warn("config reload ignored", logx.Err(err))
		return
	}
	if restart := config.RestartRequired(prev, next); len(restart) > 0 {
		a.log.Warn("restart required for config changes", logx.Strings("sections", restart))
	}

	a.logs.Apply(set.Log)
	a.notif.Apply(set.Notifier)
	a.router.SetAdmins(set.AdminChat.ChatID, set.AdminUsers)
	if err := a.web.Apply(ctx, set.Webhook); err != nil {
		a.log.Error("webhook reconfigure failed", logx.Err(err))
	}
	a.sched.Apply(set.Scheduler)
	if set.RecheckInterval != a.set.RecheckInterval {
		if err := a.sched.AddSchedule(recheckJob, set.RecheckInterval, time.Minute, a.recheck); err != nil {
			a.log.Warn("recheck reschedule failed", logx.Err(err))
		}
	}
	a.set = set

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped, no time left", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Inbound first so nothing new arrives while queues drain.
	step("webhook", 3*time.Second, a.web.Stop)
	step("engine", time.Second, func(context.Context) error { a.engine.Stop(); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	a.sup.Cancel()
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { a.closeResources(); return nil })

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
		a.store = nil
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
}
