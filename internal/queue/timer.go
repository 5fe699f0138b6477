package queue

import (
	"sync"
	"time"
)

// flushTimer re-arms a time.AfterFunc after each tick. Every disarm bumps the
// generation so a tick that is already running cannot re-arm a timer that was
// stopped or replaced meanwhile.
//
// enabled is owned by StartTimer/StopTimer. Enqueue only pauses the timer;
// a pause never changes enabled, so a caller's stop during Enqueue sticks.
type flushTimer struct {
	mu       sync.Mutex
	interval time.Duration
	fire     func()
	t        *time.Timer
	gen      uint64
	enabled  bool
	paused   int
	closed   bool
}

func newFlushTimer(interval time.Duration, fire func()) *flushTimer {
	return &flushTimer{interval: interval, fire: fire}
}

// start enables the timer unless the interval is zero or the timer was
// closed. It always returns the configured interval.
func (ft *flushTimer) start() time.Duration {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.interval <= 0 || ft.closed {
		return ft.interval
	}
	ft.enabled = true
	ft.armIfIdleLocked()
	return ft.interval
}

// stop disables the timer and reports whether it was enabled.
func (ft *flushTimer) stop() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	was := ft.enabled
	ft.enabled = false
	ft.disarmLocked()
	return was
}

// pause holds off ticks until the matching resume. Pauses nest.
func (ft *flushTimer) pause() {
	ft.mu.Lock()
	ft.paused++
	ft.disarmLocked()
	ft.mu.Unlock()
}

// resume re-arms the timer once the last pause ends, if it is still enabled.
func (ft *flushTimer) resume() {
	ft.mu.Lock()
	if ft.paused > 0 {
		ft.paused--
	}
	ft.armIfIdleLocked()
	ft.mu.Unlock()
}

func (ft *flushTimer) armIfIdleLocked() {
	if !ft.enabled || ft.closed || ft.paused > 0 || ft.t != nil {
		return
	}
	ft.gen++
	ft.armLocked(ft.gen)
}

func (ft *flushTimer) disarmLocked() {
	if ft.t == nil {
		return
	}
	ft.t.Stop()
	ft.t = nil
	ft.gen++
}

// close stops the timer for good; later starts are no-ops.
func (ft *flushTimer) close() {
	ft.mu.Lock()
	ft.enabled = false
	ft.disarmLocked()
	ft.closed = true
	ft.mu.Unlock()
}

// running reports whether the timer is enabled. A paused timer still counts.
func (ft *flushTimer) running() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.enabled
}

func (ft *flushTimer) armLocked(gen uint64) {
	ft.t = time.AfterFunc(ft.interval, func() { ft.tick(gen) })
}

func (ft *flushTimer) tick(gen uint64) {
	ft.mu.Lock()
	live := ft.t != nil && ft.gen == gen
	ft.mu.Unlock()
	if !live {
		return
	}

	ft.fire()

	ft.mu.Lock()
	if ft.t != nil && ft.gen == gen {
		ft.armLocked(gen)
	}
	ft.mu.Unlock()
}
