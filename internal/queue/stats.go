package queue

import "time"

// Stats is a point-in-time view for diagnostics and metrics.
type Stats struct {
	Pending   int `json:"pending"`
	Succeeded int `json:"succeeded"`
	// Dispatching counts items whose handler call is in progress.
	Dispatching int64 `json:"dispatching"`
	// Background counts fire-and-forget batches still running.
	Background int `json:"background"`

	Enqueued       uint64 `json:"enqueued"`
	Flushes        uint64 `json:"flushes"`
	Completed      uint64 `json:"completed"`
	FailedAttempts uint64 `json:"failed_attempts"`
	Dropped        uint64 `json:"dropped"`
	Faults         uint64 `json:"faults"`

	Handler       string        `json:"handler"`
	FireAndForget bool          `json:"fire_and_forget"`
	FlushInterval time.Duration `json:"flush_interval"`
	TimerRunning  bool          `json:"timer_running"`
}

func (e *Engine[T]) Stats() Stats {
	e.mu.Lock()
	pending, succeeded := len(e.pending), len(e.succeeded)
	e.mu.Unlock()

	return Stats{
		Pending:        pending,
		Succeeded:      succeeded,
		Dispatching:    e.dispatching.Load(),
		Background:     e.bg.count(),
		Enqueued:       e.enqueued.Load(),
		Flushes:        e.flushes.Load(),
		Completed:      e.completed.Load(),
		FailedAttempts: e.failedAttempts.Load(),
		Dropped:        e.dropped.Load(),
		Faults:         e.faults.Load(),
		Handler:        e.handler.Kind().String(),
		FireAndForget:  e.opts.FireAndForget,
		FlushInterval:  e.opts.FlushInterval,
		TimerRunning:   e.timer.running(),
	}
}
