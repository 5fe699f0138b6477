package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "flushq/pkg/logx"
)

// Trigger calls a flush func on a cron schedule.
type Trigger struct {
	expr string
	fire func()
	log  logx.Logger

	mu    sync.Mutex
	c     *cron.Cron
	fires uint64
}

// NewTrigger validates expr and returns a stopped trigger. loc may be nil
// (local time).
func NewTrigger(expr string, loc *time.Location, fire func(), log logx.Logger) (*Trigger, error) {
	if fire == nil {
		return nil, fmt.Errorf("trigger func required")
	}
	if _, err := parser.Parse(expr); err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	t := &Trigger{expr: expr, fire: fire, log: log}
	// SkipIfStillRunning keeps a slow synchronous flush from stacking up.
	t.c = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
	)
	if _, err := t.c.AddFunc(expr, t.run); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trigger) run() {
	t.mu.Lock()
	t.fires++
	n := t.fires
	t.mu.Unlock()
	t.log.Debug("cron flush", logx.String("cron", t.expr), logx.Uint64("fire", n))
	t.fire()
}

func (t *Trigger) Start() {
	t.c.Start()
	t.log.Info("cron flush trigger started", logx.String("cron", t.expr))
}

// Stop stops scheduling and waits (bounded by ctx) for a running flush.
func (t *Trigger) Stop(ctx context.Context) error {
	done := t.c.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next scheduled fire time, zero when stopped.
func (t *Trigger) Next() time.Time {
	entries := t.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Fires counts completed trigger invocations.
func (t *Trigger) Fires() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fires
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
