package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"flushq/internal/runtime/supervisor"
	logx "flushq/pkg/logx"
)

// Engine owns the pending and succeeded lists of one queue and runs flushes
// against its bound Handler. All methods are safe for concurrent use.
type Engine[T any] struct {
	opts    Options
	handler Handler[T]
	lis     Listener[T]
	log     logx.Logger
	warn    *logx.Limited
	now     func() time.Time

	// assembleMu serializes batch assembly (and the background launch that
	// follows it) across Enqueue, timer ticks and direct Flush calls.
	assembleMu sync.Mutex
	closed     bool

	// mu guards pending and succeeded, whichever flush the mutation comes from.
	mu        sync.Mutex
	pending   []*Item[T]
	succeeded []*Item[T]

	timer *flushTimer
	sup   *supervisor.Supervisor
	bg    inflight

	enqueued       atomic.Uint64
	flushes        atomic.Uint64
	completed      atomic.Uint64
	failedAttempts atomic.Uint64
	dropped        atomic.Uint64
	faults         atomic.Uint64
	dispatching    atomic.Int64
}

// New builds an engine and, when opts.FlushInterval > 0, starts its timer.
// lis may be nil.
func New[T any](opts Options, h Handler[T], log logx.Logger, lis Listener[T]) (*Engine[T], error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if lis == nil {
		lis = nopListener[T]{}
	}
	opts = opts.normalized()

	e := &Engine[T]{
		opts:    opts,
		handler: h,
		lis:     lis,
		log:     log,
		warn:    logx.NewLimited(log, time.Second, 10),
		now:     time.Now,
		sup:     supervisor.New(context.Background(), supervisor.WithLogger(log)),
	}
	e.timer = newFlushTimer(opts.FlushInterval, e.onTick)
	e.timer.start()

	log.Debug("engine created",
		logx.String("handler", h.Kind().String()),
		logx.Bool("fire_and_forget", opts.FireAndForget),
		logx.Duration("flush_interval", opts.FlushInterval),
		logx.Int("max_parallel", opts.MaxParallel),
	)
	return e, nil
}

func (e *Engine[T]) Options() Options { return e.opts }

func (e *Engine[T]) HandlerKind() HandlerKind { return e.handler.Kind() }

// Enqueue wraps each payload in a new Item, adds it to the pending list,
// fires OnPersist for it, and then triggers one Flush covering everything
// pending. The returned items may or may not have been dispatched yet,
// depending on Options.FireAndForget.
func (e *Engine[T]) Enqueue(payloads ...T) []*Item[T] {
	if len(payloads) == 0 {
		return nil
	}

	// Keep a timer tick from assembling a batch while we are appending.
	e.timer.pause()

	items := make([]*Item[T], 0, len(payloads))
	for _, p := range payloads {
		it := newItem(p, e.now())
		e.mu.Lock()
		e.pending = append(e.pending, it)
		e.mu.Unlock()
		e.notifyPersist(it)
		items = append(items, it)
	}
	e.enqueued.Add(uint64(len(items)))

	e.timer.resume()

	e.Flush()
	return items
}

// Cancel flags the pending item with the given id. It reports false when no
// pending item matches, including items that already succeeded or are being
// dispatched right now. The item leaves the pending list on the next flush.
func (e *Engine[T]) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, it := range e.pending {
		if it.id == id {
			if it.Cancel() {
				e.log.Debug("item canceled", logx.String("id", id))
			}
			return true
		}
	}
	return false
}

// Flush takes every pending item off the queue, drops the canceled ones for
// good, and dispatches the rest. Items that fail go back to pending.
//
// It returns true only when the dispatch ran synchronously and finished
// without a dispatch fault. With FireAndForget it starts the dispatch in the
// background and returns false at once.
func (e *Engine[T]) Flush() bool {
	e.assembleMu.Lock()
	if e.closed {
		e.assembleMu.Unlock()
		return false
	}

	if e.opts.FireAndForget {
		// Count the dispatch before pending is emptied so Wait never sees a
		// batch that is in neither list.
		e.bg.add()
		batch := e.takeBatch()
		if len(batch) == 0 {
			e.bg.done()
		} else {
			e.sup.Go("flush.dispatch", func(ctx context.Context) error {
				defer e.bg.done()
				_ = e.dispatch(ctx, batch)
				return nil
			})
		}
		e.assembleMu.Unlock()
		return false
	}
	batch := e.takeBatch()
	e.assembleMu.Unlock()

	if len(batch) == 0 {
		return true
	}
	return e.dispatch(e.sup.Context(), batch) == nil
}

// takeBatch swaps the pending list out and filters canceled items.
// Call with assembleMu held.
func (e *Engine[T]) takeBatch() []*Item[T] {
	e.mu.Lock()
	all := e.pending
	e.pending = nil
	e.mu.Unlock()

	batch := make([]*Item[T], 0, len(all))
	dropped := 0
	for _, it := range all {
		if it.Canceled() {
			dropped++
			continue
		}
		batch = append(batch, it)
	}
	e.flushes.Add(1)
	if dropped > 0 {
		e.dropped.Add(uint64(dropped))
	}
	if len(all) > 0 {
		e.log.Debug("flush batch assembled", logx.Int("batch", len(batch)), logx.Int("dropped_canceled", dropped))
	}
	return batch
}

// dispatch runs the handler for every batch item and re-queues whatever did
// not succeed. The re-queue is deferred so it also runs on a dispatch fault.
func (e *Engine[T]) dispatch(ctx context.Context, batch []*Item[T]) (err error) {
	start := time.Now()
	ok := make([]bool, len(batch))
	e.dispatching.Add(int64(len(batch)))

	var g errgroup.Group
	if e.opts.MaxParallel > 0 {
		g.SetLimit(e.opts.MaxParallel)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = g.Wait()
			err = fmt.Errorf("%w: %v", ErrDispatchFault, r)
			e.log.Error("flush dispatch panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
		e.dispatching.Add(-int64(len(batch)))

		retry := e.requeue(batch, ok)
		if err != nil {
			e.faults.Add(1)
			e.log.Error("flush dispatch fault", logx.Err(err), logx.Int("batch", len(batch)), logx.Int("requeued", retry))
			return
		}
		e.log.Debug("flush dispatched",
			logx.Int("batch", len(batch)),
			logx.Int("succeeded", len(batch)-retry),
			logx.Int("requeued", retry),
			logx.Duration("dur", time.Since(start)),
		)
	}()

	for i, it := range batch {
		i, it := i, it
		g.Go(func() error {
			var fault error
			ok[i], fault = e.dispatchOne(ctx, it)
			return fault
		})
	}
	return g.Wait()
}

// dispatchOne runs one attempt. A handler failure is an ordinary outcome;
// the returned error is reserved for faults outside the handler (for
// example a panicking listener).
func (e *Engine[T]) dispatchOne(ctx context.Context, it *Item[T]) (succeeded bool, fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = fmt.Errorf("%w: item %s: %v", ErrDispatchFault, it.id, r)
		}
	}()

	if e.handler.kind == KindBroadcast {
		e.lis.OnAction(it.payload)
	}

	herr := e.handler.invoke(ctx, it.payload)
	at := e.now()
	if herr != nil {
		it.recordFailure(at, herr)
		e.failedAttempts.Add(1)
		e.warn.Warn("item dispatch failed",
			logx.String("id", it.id),
			logx.Int("attempts", it.AttemptCount()),
			logx.Bool("panic", IsPanic(herr)),
			logx.Err(herr),
		)
		e.lis.OnPersist(it)
		return false, nil
	}

	e.mu.Lock()
	first := it.markCompleted(at)
	if first {
		e.succeeded = append(e.succeeded, it)
	}
	e.mu.Unlock()

	// Set before notifying: a panicking listener must not re-queue a success.
	succeeded = true
	if first {
		e.completed.Add(1)
	}
	e.lis.OnPersist(it)
	if first {
		e.lis.OnCompleted(it)
	}
	return succeeded, nil
}

func (e *Engine[T]) requeue(batch []*Item[T], ok []bool) int {
	retry := make([]*Item[T], 0, len(batch))
	for i, it := range batch {
		if !ok[i] {
			retry = append(retry, it)
		}
	}
	if len(retry) == 0 {
		return 0
	}
	e.mu.Lock()
	e.pending = append(e.pending, retry...)
	e.mu.Unlock()
	return len(retry)
}

func (e *Engine[T]) notifyPersist(it *Item[T]) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("persist listener panicked", logx.String("id", it.id), logx.Any("panic", r))
		}
	}()
	e.lis.OnPersist(it)
}

func (e *Engine[T]) onTick() {
	e.log.Trace("flush timer fired")
	e.Flush()
}

// StartTimer arms the periodic flush. It is a no-op when the timer already
// runs or the interval is zero, and always returns the configured interval.
func (e *Engine[T]) StartTimer() time.Duration { return e.timer.start() }

// StopTimer disarms the periodic flush and reports whether it was running.
func (e *Engine[T]) StopTimer() bool { return e.timer.stop() }

func (e *Engine[T]) TimerRunning() bool { return e.timer.running() }

// Pending returns a snapshot of the pending list (including canceled items
// that the next flush will drop).
func (e *Engine[T]) Pending() []*Item[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Item[T], len(e.pending))
	copy(out, e.pending)
	return out
}

// Succeeded returns a snapshot of the succeeded list in completion order.
func (e *Engine[T]) Succeeded() []*Item[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Item[T], len(e.succeeded))
	copy(out, e.succeeded)
	return out
}

// Snapshot returns the pending and succeeded lists taken under one lock, so
// an item that completes concurrently never shows up in both. Items being
// dispatched are in neither.
func (e *Engine[T]) Snapshot() (pending, succeeded []*Item[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Item[T](nil), e.pending...), append([]*Item[T](nil), e.succeeded...)
}

// Lookup finds an item in the pending or succeeded list.
// Items currently being dispatched are not visible.
func (e *Engine[T]) Lookup(id string) (*Item[T], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, it := range e.pending {
		if it.id == id {
			return it, true
		}
	}
	for _, it := range e.succeeded {
		if it.id == id {
			return it, true
		}
	}
	return nil, false
}

// Wait blocks until no background dispatch is running or ctx is done.
func (e *Engine[T]) Wait(ctx context.Context) error {
	return e.bg.wait(ctx)
}

// Close stops the timer and refuses further flushes, waits for background
// dispatches (bounded by ctx), then cancels the handler context. Items still
// pending stay readable through Pending.
func (e *Engine[T]) Close(ctx context.Context) error {
	e.assembleMu.Lock()
	if e.closed {
		e.assembleMu.Unlock()
		return nil
	}
	e.closed = true
	e.assembleMu.Unlock()

	e.timer.close()
	waitErr := e.bg.wait(ctx)
	e.sup.Cancel()
	if err := e.sup.Wait(ctx); err != nil {
		return err
	}
	if waitErr != nil {
		return waitErr
	}
	e.log.Debug("engine closed", logx.Int("pending", len(e.Pending())))
	return nil
}
