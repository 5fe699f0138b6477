package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"flushq/internal/queue"
	"flushq/internal/schedule"
	"flushq/internal/storage"
	logx "flushq/pkg/logx"
)

// Engine is the validated form of EngineConfig.
type Engine struct {
	FireAndForget bool
	Schedule      schedule.Spec
	Location      *time.Location
	MaxParallel   int
}

// Options maps the engine section to queue options. A cron schedule leaves
// the engine timer off; the app drives it from a schedule.Trigger.
func (e Engine) Options() queue.Options {
	o := queue.Options{FireAndForget: e.FireAndForget, MaxParallel: e.MaxParallel}
	if e.Schedule.Kind == schedule.Interval {
		o.FlushInterval = e.Schedule.Every
	}
	return o
}

func (c EngineConfig) Resolve() (Engine, error) {
	out := Engine{FireAndForget: true, MaxParallel: c.MaxParallel}
	if c.FireAndForget != nil {
		out.FireAndForget = *c.FireAndForget
	}
	if c.MaxParallel < 0 {
		return Engine{}, errors.New("engine.max_parallel: must be >= 0")
	}
	spec, err := schedule.Parse(c.FlushEvery, queue.DefaultFlushInterval)
	if err != nil {
		return Engine{}, fmt.Errorf("engine.flush_every: %w", err)
	}
	out.Schedule = spec

	out.Location = time.Local
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Engine{}, fmt.Errorf("engine.timezone: %w", err)
		}
		out.Location = loc
	}
	return out, nil
}

// Handler is the validated form of HandlerConfig.
type Handler struct {
	Kind     queue.HandlerKind
	Commands [][]string
	Timeout  time.Duration
}

func (c HandlerConfig) Resolve() (Handler, error) {
	kind, err := queue.ParseHandlerKind(strings.ToLower(strings.TrimSpace(c.Mode)))
	if err != nil {
		return Handler{}, fmt.Errorf("handler.mode: %w", err)
	}
	if len(c.Commands) == 0 && kind != queue.KindBroadcast {
		return Handler{}, errors.New("handler.commands: at least one command is required")
	}
	if kind == queue.KindSingle && len(c.Commands) > 1 {
		return Handler{}, errors.New("handler.commands: single mode takes exactly one command")
	}
	for i, argv := range c.Commands {
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			return Handler{}, fmt.Errorf("handler.commands[%d]: empty argv", i)
		}
	}
	timeout, err := c.Timeout.Parse("handler.timeout")
	if err != nil {
		return Handler{}, err
	}
	return Handler{Kind: kind, Commands: c.Commands, Timeout: timeout}, nil
}

// Logx maps the logging section to the log service config.
func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// StorageConfig maps the storage section; a nil section disables storage.
func (c *Config) StorageConfig() (storage.Config, int, error) {
	if c.Storage == nil {
		return storage.Config{}, 0, nil
	}
	bt, err := c.Storage.BusyTimeout.Parse("storage.busy_timeout")
	if err != nil {
		return storage.Config{}, 0, err
	}
	if c.Storage.Buffer < 0 {
		return storage.Config{}, 0, errors.New("storage.buffer: must be >= 0")
	}
	return storage.Config{
		Driver:      c.Storage.Driver,
		Path:        c.Storage.Path,
		BusyTimeout: bt,
	}, c.Storage.Buffer, nil
}

// HTTP is the validated form of HTTPConfig.
type HTTP struct {
	Addr        string
	Metrics     bool
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

func (c *Config) HTTPServer() (HTTP, bool, error) {
	if c.HTTP == nil || strings.TrimSpace(c.HTTP.Addr) == "" {
		return HTTP{}, false, nil
	}
	rt, err := c.HTTP.ReadTimeout.Or("http.read_timeout", 10*time.Second)
	if err != nil {
		return HTTP{}, false, err
	}
	it, err := c.HTTP.IdleTimeout.Or("http.idle_timeout", 60*time.Second)
	if err != nil {
		return HTTP{}, false, err
	}
	return HTTP{
		Addr:        strings.TrimSpace(c.HTTP.Addr),
		Metrics:     c.HTTP.Metrics,
		ReadTimeout: rt,
		IdleTimeout: it,
	}, true, nil
}

// Validate checks every section; it is also the default hot-reload gate.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := c.Engine.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Handler.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.StorageConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.HTTPServer(); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path: required when file logging is enabled"))
	}
	return errors.Join(errs...)
}

// Restart lists the sections whose change needs a process restart; only
// logging is applied live.
func Restart(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if hashSection(oldCfg.Engine) != hashSection(newCfg.Engine) {
		out = append(out, "engine")
	}
	if hashSection(oldCfg.Handler) != hashSection(newCfg.Handler) {
		out = append(out, "handler")
	}
	if hashSection(oldCfg.Storage) != hashSection(newCfg.Storage) {
		out = append(out, "storage")
	}
	if hashSection(oldCfg.HTTP) != hashSection(newCfg.HTTP) {
		out = append(out, "http")
	}
	return out
}
