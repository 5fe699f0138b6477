package storage

import (
	"context"
	"sync/atomic"
	"time"

	"flushq/internal/queue"
	"flushq/internal/wire"
	logx "flushq/pkg/logx"
)

// Journal records every OnPersist notification in a Store.
//
// Writes go through a bounded buffer drained by Run, so a slow store never
// blocks a flush. When the buffer is full the record is dropped and a
// throttled warning is logged; the next notification for the same item
// carries the newer state anyway.
type Journal[T any] struct {
	store Store
	log   logx.Logger
	warn  *logx.Limited
	now   func() time.Time

	ch chan wire.Record

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewJournal returns a journal writing to st. buffer <= 0 means 1024.
func NewJournal[T any](st Store, log logx.Logger, buffer int) *Journal[T] {
	if buffer <= 0 {
		buffer = 1024
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Journal[T]{
		store: st,
		log:   log,
		warn:  logx.NewLimited(log, 5*time.Second, 3),
		now:   time.Now,
		ch:    make(chan wire.Record, buffer),
	}
}

func (j *Journal[T]) OnPersist(item *queue.Item[T]) {
	r, err := wire.Encode(item, j.now())
	if err != nil {
		j.failed.Add(1)
		j.warn.Warn("journal encode failed", logx.String("id", item.ID()), logx.Err(err))
		return
	}
	select {
	case j.ch <- r:
	default:
		j.dropped.Add(1)
		j.warn.Warn("journal buffer full; record dropped", logx.String("id", r.ID), logx.Uint64("dropped", j.dropped.Load()))
	}
}

// OnCompleted is covered by the OnPersist call that precedes it.
func (j *Journal[T]) OnCompleted(*queue.Item[T]) {}

func (j *Journal[T]) OnAction(T) {}

// Run writes buffered records until ctx is done, then drains what is left
// with a short grace period.
func (j *Journal[T]) Run(ctx context.Context) error {
	for {
		select {
		case r := <-j.ch:
			j.put(ctx, r)
		case <-ctx.Done():
			j.drain()
			return nil
		}
	}
}

func (j *Journal[T]) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case r := <-j.ch:
			j.put(ctx, r)
		default:
			return
		}
	}
}

func (j *Journal[T]) put(ctx context.Context, r wire.Record) {
	if err := j.store.Put(ctx, r); err != nil {
		j.failed.Add(1)
		j.warn.Warn("journal write failed", logx.String("id", r.ID), logx.Err(err))
		return
	}
	j.written.Add(1)
}

// JournalStats counts journal outcomes since construction.
type JournalStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Queued  int    `json:"queued"`
}

func (j *Journal[T]) Stats() JournalStats {
	return JournalStats{
		Written: j.written.Load(),
		Dropped: j.dropped.Load(),
		Failed:  j.failed.Load(),
		Queued:  len(j.ch),
	}
}
