// Package app wires the pipeline together: config, logging, storage, the
// subscription registry, the dispatch engine, the trigger scheduler and the
// caller facade, all under one supervisor.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nutripush/internal/config"
	"nutripush/internal/dispatch"
	"nutripush/internal/eventbus"
	"nutripush/internal/metrics"
	"nutripush/internal/notify"
	"nutripush/internal/profile"
	"nutripush/internal/push"
	"nutripush/internal/registry"
	"nutripush/internal/runtime/supervisor"
	"nutripush/internal/schedule"
	"nutripush/internal/storage"
	logx "nutripush/pkg/logx"
)

// profileRefresh is how often the profile and metrics files are re-read so
// preference/quiet-hours edits take effect without a restart.
const profileRefresh = 30 * time.Second

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	profiles *profile.FileStore
	metrics  *metrics.FileStore
	reg      *registry.Registry
	engine   *dispatch.Engine
	sched    *schedule.Service
	notif    *notify.Service
}

func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	if strings.TrimSpace(cfg.Profiles.Path) == "" {
		return nil, fmt.Errorf("profiles.path is required")
	}
	profiles, err := profile.OpenFile(cfg.Profiles.Path)
	if err != nil {
		return nil, fmt.Errorf("profiles: %w", err)
	}
	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		return nil, fmt.Errorf("metrics.path is required")
	}
	mets, err := metrics.OpenFile(cfg.Metrics.Path)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	reg := registry.New(ctx, store, log.With(logx.String("comp", "registry")))

	creds, err := push.CredentialsFromEnv()
	if err != nil {
		return nil, err
	}
	if !creds.Configured() {
		return nil, fmt.Errorf("VAPID keys are not configured (set VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY)")
	}
	pushCfg, err := mapPushConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := push.NewWebPush(pushCfg, creds, log.With(logx.String("comp", "push")))
	if err != nil {
		return nil, err
	}

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	engine := dispatch.New(dcfg, reg, client, profiles, store, bus,
		log.With(logx.String("comp", "dispatch")))

	rules, err := schedule.DefaultRules(mets)
	if err != nil {
		return nil, err
	}
	scfg, err := mapScheduleConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched, err := schedule.New(scfg, rules, profiles, engine, bus,
		log.With(logx.String("comp", "schedule")))
	if err != nil {
		return nil, err
	}

	notif := notify.New(reg, engine, store, log.With(logx.String("comp", "notify")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		profiles: profiles,
		metrics:  mets,
		reg:      reg,
		engine:   engine,
		sched:    sched,
		notif:    notif,
	}, nil
}

// Notify is the embedding surface: everything callers need goes through it.
func (a *App) Notify() *notify.Service { return a.notif }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPushConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, err := mapScheduleConfig(cfg); err != nil {
			return err
		}
		for name, raw := range cfg.Scheduler.Rules {
			if _, err := schedule.ParseOverride(raw); err != nil {
				return fmt.Errorf("scheduler.rules[%s]: %w", name, err)
			}
		}
		return nil
	})

	if a.sched != nil {
		a.sup.Go("schedule.run", a.sched.Run)
	}

	// Re-read the profile and metrics files so edits are picked up live.
	a.sup.GoRestart("profiles.refresh", func(c context.Context) error {
		t := time.NewTicker(profileRefresh)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return c.Err()
			case <-t.C:
				if err := a.profiles.Reload(); err != nil {
					a.log.Warn("profile reload failed", logx.Err(err))
				}
				if err := a.metrics.Reload(); err != nil {
					a.log.Warn("metrics reload failed", logx.Err(err))
				}
			}
		}
	})

	// Operator-visible event drain. Prunes and skips matter; the rest is debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				switch e.Type {
				case eventbus.TypePruned, eventbus.TypeDeliverySkipped:
					a.log.Info("event", logx.String("type", e.Type), logx.Any("data", e.Data))
				default:
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					continue
				}

				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})

				if dcfg, err := mapDispatchConfig(newCfg); err != nil {
					a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
				} else {
					a.engine.Apply(dcfg)
				}

				for _, s := range sections {
					switch s {
					case "storage", "scheduler", "profiles", "metrics":
						a.log.Warn("config section changed; restart required for changes to take effect",
							logx.String("section", s))
					}
				}

				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Err(stepCtx.Err()))
		}
	}

	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
