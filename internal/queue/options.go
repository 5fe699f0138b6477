package queue

import "time"

// DefaultFlushInterval is the timer cadence used by DefaultOptions.
const DefaultFlushInterval = 30 * time.Second

// Options configures an Engine. It is copied at construction and never
// changes afterwards.
type Options struct {
	// FireAndForget runs each flush's dispatch on a background goroutine and
	// returns to the caller immediately. When false, Flush (and therefore
	// Enqueue) blocks until every item in the batch has been dispatched.
	FireAndForget bool

	// FlushInterval is the periodic flush cadence. 0 disables the timer;
	// flushes then happen only on Enqueue or an explicit Flush.
	FlushInterval time.Duration

	// MaxParallel bounds concurrent handler calls within one batch.
	// 0 runs every item of the batch on its own goroutine.
	MaxParallel int
}

// DefaultOptions enables both periodic flushing and background dispatch.
func DefaultOptions() Options {
	return Options{
		FireAndForget: true,
		FlushInterval: DefaultFlushInterval,
	}
}

func (o Options) normalized() Options {
	if o.FlushInterval < 0 {
		o.FlushInterval = 0
	}
	if o.MaxParallel < 0 {
		o.MaxParallel = 0
	}
	return o
}
