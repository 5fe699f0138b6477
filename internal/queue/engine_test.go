package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "flushq/pkg/logx"
)

func syncOptions() Options { return Options{FireAndForget: false} }

func newTestEngine[T any](t *testing.T, opts Options, h Handler[T], lis Listener[T]) *Engine[T] {
	t.Helper()
	e, err := New(opts, h, logx.Nop(), lis)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e
}

// stage appends items to the pending list without triggering a flush, the
// way a concurrent Enqueue would look to the next flush.
func stage[T any](e *Engine[T], payloads ...T) []*Item[T] {
	items := make([]*Item[T], 0, len(payloads))
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range payloads {
		it := newItem(p, e.now())
		e.pending = append(e.pending, it)
		items = append(items, it)
	}
	return items
}

func ids[T any](items []*Item[T]) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it.ID()] = true
	}
	return out
}

// failFirst fails the first n attempts of every payload, then succeeds.
type failFirst[T comparable] struct {
	n     int
	mu    sync.Mutex
	seen  map[T]int
	calls atomic.Int64
}

func newFailFirst[T comparable](n int) *failFirst[T] {
	return &failFirst[T]{n: n, seen: map[T]int{}}
}

func (f *failFirst[T]) handle(ctx context.Context, p T) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen[p]++
	k := f.seen[p]
	f.mu.Unlock()
	if k <= f.n {
		return fmt.Errorf("attempt %d of %v failed", k, p)
	}
	return nil
}

func (f *failFirst[T]) count(p T) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[p]
}

func TestNewRejectsMissingHandler(t *testing.T) {
	t.Parallel()
	_, err := New(syncOptions(), Handler[int]{}, logx.Nop(), nil)
	require.ErrorIs(t, err, ErrNoHandler)

	_, err = New(syncOptions(), Multicast[int](), logx.Nop(), nil)
	require.ErrorIs(t, err, ErrNoHandler)

	_, err = New(syncOptions(), Broadcast[int](), logx.Nop(), nil)
	require.NoError(t, err)
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()
	o := DefaultOptions()
	assert.True(t, o.FireAndForget)
	assert.Equal(t, DefaultFlushInterval, o.FlushInterval)
	assert.NotZero(t, o.FlushInterval)
}

func TestFailOnceThenSucceed(t *testing.T) {
	t.Parallel()
	h := newFailFirst[int](1)
	e := newTestEngine(t, syncOptions(), Single(h.handle), nil)

	items := e.Enqueue(42)
	require.Len(t, items, 1)
	it := items[0]

	// The flush triggered by Enqueue is the first attempt.
	assert.Equal(t, StatePending, it.State())
	require.Len(t, it.Attempts(), 1)
	assert.Contains(t, it.Attempts()[0].Err, "attempt 1")
	assert.Len(t, e.Pending(), 1)
	assert.Empty(t, e.Succeeded())

	require.True(t, e.Flush())
	completedAt, ok := it.CompletedAt()
	require.True(t, ok)
	assert.Equal(t, StateSucceeded, it.State())
	assert.Len(t, it.Attempts(), 1)
	assert.False(t, completedAt.Before(it.Attempts()[0].At))
	assert.Empty(t, e.Pending())
	require.Len(t, e.Succeeded(), 1)
	assert.Equal(t, it.ID(), e.Succeeded()[0].ID())
}

func TestSucceedsOnNthAttempt(t *testing.T) {
	t.Parallel()
	const n = 5
	h := newFailFirst[string](n - 1)
	e := newTestEngine(t, syncOptions(), Single(h.handle), nil)

	it := e.Enqueue("payload")[0]
	for i := 0; i < n-1; i++ {
		e.Flush()
	}
	assert.Equal(t, n, h.count("payload"))

	atts := it.Attempts()
	require.Len(t, atts, n-1)
	for i := 1; i < len(atts); i++ {
		assert.False(t, atts[i].At.Before(atts[i-1].At))
	}
	completedAt, ok := it.CompletedAt()
	require.True(t, ok)
	assert.False(t, completedAt.Before(atts[len(atts)-1].At))
	assert.Len(t, e.Succeeded(), 1)

	// Further flushes never touch a succeeded item.
	e.Flush()
	assert.Equal(t, n, h.count("payload"))
	assert.Len(t, it.Attempts(), n-1)
}

func TestAlwaysFailingItemIsRetriedForever(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error { return boom }), nil)

	it := e.Enqueue(7)[0]
	for i := 2; i <= 20; i++ {
		require.True(t, e.Flush())
		assert.Len(t, it.Attempts(), i)
	}
	assert.Equal(t, StatePending, it.State())
	assert.Empty(t, e.Succeeded())
	assert.Equal(t, uint64(20), e.Stats().FailedAttempts)
	assert.Equal(t, "boom", it.Attempts()[0].Err)
}

func TestCancelBeforeFlushSkipsHandler(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var handled []int
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error {
		mu.Lock()
		handled = append(handled, p)
		mu.Unlock()
		return nil
	}), nil)

	items := stage(e, 1, 2, 3, 4, 5)
	require.True(t, e.Cancel(items[1].ID()))
	require.True(t, e.Cancel(items[3].ID()))
	// Canceling twice still finds the pending item.
	require.True(t, e.Cancel(items[3].ID()))

	require.True(t, e.Flush())

	assert.ElementsMatch(t, []int{1, 3, 5}, handled)
	succeeded := ids(e.Succeeded())
	assert.Len(t, succeeded, 3)
	assert.False(t, succeeded[items[1].ID()])
	assert.False(t, succeeded[items[3].ID()])
	assert.Empty(t, e.Pending())
	assert.Equal(t, StateCanceled, items[1].State())
	assert.Empty(t, items[1].Attempts())
	assert.Equal(t, uint64(2), e.Stats().Dropped)
}

func TestCanceledFailingItemStopsAccruingAttempts(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error { return errors.New("nope") }), nil)

	it := e.Enqueue(1)[0]
	require.Len(t, it.Attempts(), 1)
	require.True(t, e.Cancel(it.ID()))

	e.Flush()
	e.Flush()
	assert.Len(t, it.Attempts(), 1)
	assert.Empty(t, e.Pending())
	assert.Empty(t, e.Succeeded())
}

func TestCancelUnknownOrSucceeded(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error { return nil }), nil)

	assert.False(t, e.Cancel("does-not-exist"))

	it := e.Enqueue(1)[0]
	require.Equal(t, StateSucceeded, it.State())
	assert.False(t, e.Cancel(it.ID()))

	// Flagging the item directly is recorded but does not undo the success.
	assert.True(t, it.Cancel())
	assert.False(t, it.Cancel())
	assert.True(t, it.Canceled())
	assert.Equal(t, StateSucceeded, it.State())
	assert.Len(t, e.Succeeded(), 1)
}

func TestFlushReturnValue(t *testing.T) {
	t.Parallel()
	ok := Single(func(ctx context.Context, p int) error { return nil })

	syncEng := newTestEngine(t, syncOptions(), ok, nil)
	assert.True(t, syncEng.Flush(), "empty synchronous flush")
	stage(syncEng, 1)
	assert.True(t, syncEng.Flush())

	bgEng := newTestEngine(t, Options{FireAndForget: true}, ok, nil)
	stage(bgEng, 1)
	assert.False(t, bgEng.Flush())
	require.NoError(t, bgEng.Wait(context.Background()))
	assert.Len(t, bgEng.Succeeded(), 1)
}

func TestFireAndForgetEnqueueDoesNotBlock(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	e := newTestEngine(t, Options{FireAndForget: true}, Single(func(ctx context.Context, p int) error {
		<-release
		return nil
	}), nil)

	done := make(chan []*Item[int])
	go func() { done <- e.Enqueue(1, 2, 3) }()

	var items []*Item[int]
	select {
	case items = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on dispatch")
	}
	require.Len(t, items, 3)
	require.Eventually(t, func() bool { return e.Stats().Dispatching == 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, e.Stats().Background)

	close(release)
	require.NoError(t, e.Wait(context.Background()))
	assert.Len(t, e.Succeeded(), 3)
	assert.Equal(t, int64(0), e.Stats().Dispatching)
}

func TestConcurrentEnqueueNeverLosesItems(t *testing.T) {
	t.Parallel()
	h := newFailFirst[string](1)
	e := newTestEngine(t, Options{FireAndForget: true, MaxParallel: 16}, Single(h.handle), nil)

	const callers, batches, perBatch = 10, 3, 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := map[string]bool{}
	for c := 0; c < callers; c++ {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := 0; b < batches; b++ {
				payloads := make([]string, perBatch)
				for i := range payloads {
					payloads[i] = fmt.Sprintf("c%d-b%d-i%d", c, b, i)
				}
				items := e.Enqueue(payloads...)
				mu.Lock()
				for _, it := range items {
					created[it.ID()] = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, created, callers*batches*perBatch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Mid-flight snapshot: every item is in exactly one list.
	require.NoError(t, e.Wait(ctx))
	assertPartition(t, e, created)

	// Drain: each item fails once, so a couple of flushes settle everything.
	for i := 0; i < 10 && len(e.Pending()) > 0; i++ {
		e.Flush()
		require.NoError(t, e.Wait(ctx))
	}
	assert.Empty(t, e.Pending())
	assert.Len(t, e.Succeeded(), callers*batches*perBatch)
	assertPartition(t, e, created)
}

func assertPartition[T any](t *testing.T, e *Engine[T], created map[string]bool) {
	t.Helper()
	pending := ids(e.Pending())
	succeeded := ids(e.Succeeded())
	for id := range pending {
		assert.False(t, succeeded[id], "item %s is both pending and succeeded", id)
	}
	union := len(pending) + len(succeeded)
	assert.Equal(t, len(created), union)
	for id := range created {
		assert.True(t, pending[id] || succeeded[id], "item %s lost", id)
	}
}

func TestHandlerPanicIsAFailedAttempt(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error {
		if calls.Add(1) == 1 {
			panic("bad payload")
		}
		return nil
	}), nil)

	it := e.Enqueue(1)[0]
	require.Len(t, it.Attempts(), 1)
	assert.Contains(t, it.Attempts()[0].Err, "handler panic: bad payload")
	assert.Zero(t, e.Stats().Faults)

	require.True(t, e.Flush())
	assert.Equal(t, StateSucceeded, it.State())
}

func TestOneFailureDoesNotAffectBatch(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error {
		if p%2 == 0 {
			return errors.New("even")
		}
		return nil
	}), nil)

	e.Enqueue(1, 2, 3, 4, 5, 6)
	assert.Len(t, e.Succeeded(), 3)
	assert.Len(t, e.Pending(), 3)
	for _, it := range e.Pending() {
		assert.Equal(t, 0, it.Payload()%2)
		assert.Len(t, it.Attempts(), 1)
	}
}

func TestNotificationOrder(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var log []string
	record := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}
	lis := ListenerFuncs[int]{
		Persist:   func(it *Item[int]) { record(fmt.Sprintf("persist:%d:%s", it.Payload(), it.State())) },
		Completed: func(it *Item[int]) { record(fmt.Sprintf("completed:%d", it.Payload())) },
		Action:    func(p int) { record(fmt.Sprintf("action:%d", p)) },
	}
	h := newFailFirst[int](1)
	e := newTestEngine(t, syncOptions(), Single(h.handle), lis)

	e.Enqueue(9)
	e.Flush()

	assert.Equal(t, []string{
		"persist:9:pending",   // enqueue
		"persist:9:pending",   // failed attempt
		"persist:9:succeeded", // successful attempt
		"completed:9",
	}, log)
}

func TestMulticastStopsAtFirstError(t *testing.T) {
	t.Parallel()
	var first, second, third atomic.Int32
	e := newTestEngine(t, syncOptions(), Multicast(
		func(ctx context.Context, p int) error { first.Add(1); return nil },
		func(ctx context.Context, p int) error {
			if second.Add(1) == 1 {
				return errors.New("second failed")
			}
			return nil
		},
		func(ctx context.Context, p int) error { third.Add(1); return nil },
	), nil)
	assert.Equal(t, KindMulticast, e.HandlerKind())

	it := e.Enqueue(1)[0]
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.Equal(t, int32(0), third.Load())
	require.Len(t, it.Attempts(), 1)
	assert.Equal(t, "second failed", it.Attempts()[0].Err)

	e.Flush()
	assert.Equal(t, int32(1), third.Load())
	assert.Equal(t, StateSucceeded, it.State())
}

func TestBroadcastRunsAllSubscribersAndEmitsAction(t *testing.T) {
	t.Parallel()
	var a, b atomic.Int32
	var actions atomic.Int32
	var completed atomic.Int32
	lis := ListenerFuncs[int]{
		Action:    func(p int) { actions.Add(1) },
		Completed: func(*Item[int]) { completed.Add(1) },
	}
	e := newTestEngine(t, syncOptions(), Broadcast(
		func(ctx context.Context, p int) error {
			if a.Add(1) == 1 {
				return errors.New("a failed")
			}
			return nil
		},
		func(ctx context.Context, p int) error { b.Add(1); return errors.New("b failed") },
	), lis)

	it := e.Enqueue(3)[0]
	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load(), "broadcast keeps going after an error")
	assert.Equal(t, int32(1), actions.Load())
	require.Len(t, it.Attempts(), 1)
	assert.Contains(t, it.Attempts()[0].Err, "a failed")
	assert.Contains(t, it.Attempts()[0].Err, "b failed")

	e.Flush()
	assert.Equal(t, int32(2), actions.Load(), "one action per attempt")
	assert.Equal(t, StatePending, it.State())
	assert.Zero(t, completed.Load())
}

func TestSingleHandlerNeverEmitsAction(t *testing.T) {
	t.Parallel()
	var actions atomic.Int32
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error { return nil }),
		ListenerFuncs[int]{Action: func(int) { actions.Add(1) }})
	e.Enqueue(1, 2)
	assert.Zero(t, actions.Load())
}

func TestListenerPanicAfterSuccessIsFaultWithoutRequeue(t *testing.T) {
	t.Parallel()
	lis := ListenerFuncs[int]{Completed: func(*Item[int]) { panic("listener broke") }}
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error { return nil }), lis)

	items := stage(e, 1, 2)
	assert.False(t, e.Flush())
	assert.Equal(t, uint64(1), e.Stats().Faults)
	assert.Empty(t, e.Pending(), "succeeded items must not be re-queued")
	assert.Len(t, e.Succeeded(), 2)
	for _, it := range items {
		assert.Equal(t, StateSucceeded, it.State())
	}
}

func TestDispatchFaultRequeuesUnfinishedItems(t *testing.T) {
	t.Parallel()
	lis := ListenerFuncs[int]{Action: func(p int) {
		if p == 2 {
			panic("action sink down")
		}
	}}
	e := newTestEngine(t, syncOptions(), Broadcast(func(ctx context.Context, p int) error { return nil }), lis)

	stage(e, 1, 2, 3)
	assert.False(t, e.Flush())
	require.Len(t, e.Pending(), 1)
	assert.Equal(t, 2, e.Pending()[0].Payload())
	assert.Empty(t, e.Pending()[0].Attempts())
	assert.Len(t, e.Succeeded(), 2)
}

func TestEnqueueListenerPanicIsContained(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	lis := ListenerFuncs[int]{Persist: func(it *Item[int]) {
		if calls.Add(1) == 1 {
			panic("journal down")
		}
	}}
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error { return nil }), lis)

	items := e.Enqueue(1)
	require.Len(t, items, 1)
	assert.Equal(t, StateSucceeded, items[0].State())
}

func TestTimerFlushesPeriodically(t *testing.T) {
	t.Parallel()
	h := newFailFirst[int](2)
	e := newTestEngine(t, Options{FireAndForget: false, FlushInterval: 10 * time.Millisecond}, Single(h.handle), nil)
	require.True(t, e.TimerRunning())

	it := e.Enqueue(1)[0]
	require.Eventually(t, func() bool { return it.State() == StateSucceeded }, 3*time.Second, 5*time.Millisecond)
	assert.Len(t, it.Attempts(), 2)
	assert.True(t, e.TimerRunning(), "enqueue restores a running timer")
}

func TestStartStopTimer(t *testing.T) {
	t.Parallel()
	noop := Single(func(ctx context.Context, p int) error { return nil })

	e := newTestEngine(t, Options{FlushInterval: time.Hour}, noop, nil)
	assert.True(t, e.TimerRunning())
	assert.Equal(t, time.Hour, e.StartTimer(), "start while running is a no-op")
	assert.True(t, e.StopTimer())
	assert.False(t, e.StopTimer())
	assert.False(t, e.TimerRunning())

	// A caller-stopped timer stays stopped across Enqueue.
	e.Enqueue(1)
	assert.False(t, e.TimerRunning())
	assert.Equal(t, time.Hour, e.StartTimer())
	assert.True(t, e.TimerRunning())

	zero := newTestEngine(t, Options{}, noop, nil)
	assert.False(t, zero.TimerRunning())
	assert.Equal(t, time.Duration(0), zero.StartTimer())
	assert.False(t, zero.TimerRunning())
}

func TestStopTimerDuringEnqueueSticks(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	lis := ListenerFuncs[int]{Persist: func(*Item[int]) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}}
	noop := Single(func(ctx context.Context, p int) error { return nil })
	e := newTestEngine[int](t, Options{FlushInterval: time.Hour}, noop, lis)
	require.True(t, e.TimerRunning())

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Enqueue(1)
	}()

	<-entered
	assert.True(t, e.TimerRunning(), "a paused timer is still enabled")
	assert.True(t, e.StopTimer(), "stop reports the timer that was enabled")
	close(release)
	<-done

	assert.False(t, e.TimerRunning(), "enqueue must not re-arm a stopped timer")
	assert.False(t, e.StopTimer())
}

func TestStoppedTimerDoesNotFlush(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	e := newTestEngine(t, Options{FlushInterval: 5 * time.Millisecond}, Single(func(ctx context.Context, p int) error {
		calls.Add(1)
		return nil
	}), nil)
	require.True(t, e.StopTimer())

	stage(e, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Len(t, e.Pending(), 1)
}

func TestWaitCoversBatchBeingAssembled(t *testing.T) {
	t.Parallel()
	noop := Single(func(ctx context.Context, p int) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	e := newTestEngine(t, Options{FireAndForget: true}, noop, nil)

	for i := 0; i < 200; i++ {
		id := stage(e, i)[0].ID()
		go e.Flush()
		for {
			require.NoError(t, e.Wait(context.Background()))
			pending, succeeded := e.Snapshot()
			if ids(succeeded)[id] {
				break
			}
			if !ids(pending)[id] {
				// Taken off pending after Wait returned: the dispatch must be counted.
				require.True(t, e.Stats().Background > 0 || ids(e.Succeeded())[id],
					"item %d is in neither list and no dispatch is running", i)
			}
			runtime.Gosched()
		}
	}
}

func TestSnapshotListsAreDisjoint(t *testing.T) {
	t.Parallel()
	h := newFailFirst[int](1)
	e := newTestEngine(t, syncOptions(), Single(h.handle), nil)
	e.Enqueue(1, 2)
	stage(e, 3)

	pending, succeeded := e.Snapshot()
	assert.Len(t, pending, 3)
	assert.Empty(t, succeeded)

	e.Flush()
	pending, succeeded = e.Snapshot()
	assert.Len(t, pending, 1)
	assert.Len(t, succeeded, 2)
	for id := range ids(pending) {
		assert.False(t, ids(succeeded)[id])
	}
}

func TestMaxParallelBoundsConcurrency(t *testing.T) {
	t.Parallel()
	var cur, peak atomic.Int32
	e := newTestEngine(t, Options{MaxParallel: 2}, Single(func(ctx context.Context, p int) error {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return nil
	}), nil)

	e.Enqueue(1, 2, 3, 4, 5, 6, 7, 8)
	assert.Len(t, e.Succeeded(), 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestLookupAndStats(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syncOptions(), Single(func(ctx context.Context, p int) error {
		if p < 0 {
			return errors.New("negative")
		}
		return nil
	}), nil)

	items := e.Enqueue(1, -1)
	got, ok := e.Lookup(items[0].ID())
	require.True(t, ok)
	assert.Same(t, items[0], got)
	got, ok = e.Lookup(items[1].ID())
	require.True(t, ok)
	assert.Equal(t, StatePending, got.State())
	_, ok = e.Lookup("missing")
	assert.False(t, ok)

	st := e.Stats()
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 1, st.Succeeded)
	assert.Equal(t, uint64(2), st.Enqueued)
	assert.Equal(t, uint64(1), st.Flushes)
	assert.Equal(t, uint64(1), st.Completed)
	assert.Equal(t, uint64(1), st.FailedAttempts)
	assert.Equal(t, "single", st.Handler)
}

func TestCloseStopsFlushing(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	e, err := New(Options{FireAndForget: true, FlushInterval: time.Hour}, Single(func(ctx context.Context, p int) error {
		calls.Add(1)
		return nil
	}), logx.Nop(), nil)
	require.NoError(t, err)

	e.Enqueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
	require.NoError(t, e.Close(ctx))
	assert.False(t, e.TimerRunning())
	assert.Equal(t, int32(1), calls.Load())

	items := e.Enqueue(2)
	require.Len(t, items, 1)
	assert.False(t, e.Flush())
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, e.Pending(), 1)
	assert.Equal(t, time.Hour, e.StartTimer())
	assert.False(t, e.TimerRunning())
}

func TestItemIDsAreUnique(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := newItemID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
