package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"flushq/internal/api"
	"flushq/internal/config"
	"flushq/internal/eventbus"
	"flushq/internal/handler"
	"flushq/internal/metrics"
	"flushq/internal/queue"
	"flushq/internal/runtime/supervisor"
	"flushq/internal/schedule"
	"flushq/internal/storage"
	logx "flushq/pkg/logx"
)

// App wires one string-payload engine to its config, journal, cron trigger
// and HTTP API.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store       storage.Store
	journal     *storage.Journal[string]
	journalStop context.CancelFunc
	journalDone chan struct{}

	engine  *queue.Engine[string]
	trigger *schedule.Trigger

	reg    *prometheus.Registry
	http   config.HTTP
	httpOn bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	a := &App{cfgm: cfgm, logs: logSvc, log: log.With(logx.String("comp", "app")), bus: eventbus.New()}
	if err := a.build(cfg, log); err != nil {
		if a.engine != nil {
			_ = a.engine.Close(context.Background())
		}
		_ = a.closeStore()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	engCfg, err := cfg.Engine.Resolve()
	if err != nil {
		return err
	}
	hCfg, err := cfg.Handler.Resolve()
	if err != nil {
		return err
	}
	h, err := handler.Build(hCfg.Kind, hCfg.Commands, hCfg.Timeout, log.With(logx.String("comp", "handler")))
	if err != nil {
		return err
	}

	listeners := []queue.Listener[string]{queue.BusListener[string]{Bus: a.bus}}

	sc, buffer, err := cfg.StorageConfig()
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	if st != nil {
		a.store = st
		a.journal = storage.NewJournal[string](st, log.With(logx.String("comp", "journal")), buffer)
		listeners = append(listeners, a.journal)
		a.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	eng, err := queue.New(engCfg.Options(), h, log.With(logx.String("comp", "engine")), queue.Listeners(listeners...))
	if err != nil {
		return err
	}
	a.engine = eng

	if engCfg.Schedule.Kind == schedule.Cron {
		tr, err := schedule.NewTrigger(engCfg.Schedule.Cron, engCfg.Location, func() { eng.Flush() },
			log.With(logx.String("comp", "schedule")))
		if err != nil {
			return err
		}
		a.trigger = tr
	}

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(
		metrics.NewCollector(eng, prometheus.Labels{"queue": "default"}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.http, a.httpOn, err = cfg.HTTPServer()
	if err != nil {
		return err
	}

	a.log.Info("engine ready",
		logx.String("handler", hCfg.Kind.String()),
		logx.Int("commands", len(hCfg.Commands)),
		logx.String("schedule", engCfg.Schedule.Kind.String()),
		logx.Bool("fire_and_forget", engCfg.FireAndForget),
	)
	return nil
}

func (a *App) Engine() *queue.Engine[string] { return a.engine }

func (a *App) Bus() eventbus.Bus { return a.bus }

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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if a.journal != nil {
		// The journal outlives the supervisor context so it can record the
		// final flushes during Stop.
		jctx, cancel := context.WithCancel(context.Background())
		a.journalStop = cancel
		a.journalDone = make(chan struct{})
		a.sup.Go("storage.journal", func(context.Context) error {
			defer close(a.journalDone)
			return a.journal.Run(jctx)
		})
	}

	if a.trigger != nil {
		a.trigger.Start()
	}

	if a.httpOn {
		var reg *prometheus.Registry
		if a.http.Metrics {
			reg = a.reg
		}
		router := api.NewRouter[string](a.engine, a.log.With(logx.String("comp", "http")), reg)
		srvCfg := api.ServerConfig{Addr: a.http.Addr, ReadTimeout: a.http.ReadTimeout, IdleTimeout: a.http.IdleTimeout}
		a.sup.Go("http.api", func(c context.Context) error {
			return api.Serve(c, srvCfg, router, a.log.With(logx.String("comp", "http")))
		})
	}

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
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// reloadLoop applies logging changes live and flags everything else as
// needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}

			a.logs.Apply(newCfg.Logging.Logx())
			if sections := config.Restart(lastApplied, newCfg); len(sections) > 0 {
				a.log.Warn("config changed; restart required for changes to take effect",
					logx.String("sections", strings.Join(sections, ",")))
			}
			lastApplied = newCfg
			a.log.Info("config reloaded", logx.String("level", newCfg.Logging.Level))
		}
	}
}

// EnqueueLines enqueues each non-empty line of r until EOF or ctx is done.
func (a *App) EnqueueLines(ctx context.Context, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		a.engine.Enqueue(line)
		n++
	}
	return n, sc.Err()
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		// Unwind HTTP, config watch and event loops first so no new work arrives.
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("schedule", 2*time.Second, func(c context.Context) error {
		if a.trigger == nil {
			return nil
		}
		return a.trigger.Stop(c)
	})
	step("engine", 5*time.Second, func(c context.Context) error {
		err := a.engine.Close(c)
		if n := len(a.engine.Pending()); n > 0 {
			a.log.Warn("items still pending at shutdown are discarded", logx.Int("pending", n))
		}
		return err
	})
	step("journal", 3*time.Second, func(c context.Context) error {
		if a.journalStop == nil {
			return nil
		}
		a.journalStop()
		select {
		case <-a.journalDone:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	step("storage", time.Second, func(context.Context) error { return a.closeStore() })

	a.log.Info("stopped", logx.Any("stats", a.engine.Stats()))
	if a.logs != nil {
		if err := a.logs.Close(); err != nil {
			return fmt.Errorf("close logs: %w", err)
		}
	}
	return nil
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
