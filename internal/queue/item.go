package queue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the derived lifecycle state of an Item.
type State int

const (
	StatePending State = iota
	StateSucceeded
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Attempt records one failed dispatch.
type Attempt struct {
	At  time.Time `json:"at"`
	Err string    `json:"err"`
}

// Item wraps a caller payload with its queue lifecycle metadata.
//
// Identity and timestamps are assigned by the Engine; callers only read them.
type Item[T any] struct {
	id          string
	payload     T
	submittedAt time.Time

	canceled atomic.Bool

	mu          sync.Mutex
	completedAt time.Time
	attempts    []Attempt
}

func newItem[T any](payload T, now time.Time) *Item[T] {
	return &Item[T]{id: newItemID(), payload: payload, submittedAt: now}
}

func newItemID() string {
	// v7 keeps ids roughly ordered by submission time.
	if u, err := uuid.NewV7(); err == nil {
		return u.String()
	}
	return uuid.NewString()
}

func (it *Item[T]) ID() string             { return it.id }
func (it *Item[T]) Payload() T             { return it.payload }
func (it *Item[T]) SubmittedAt() time.Time { return it.submittedAt }
func (it *Item[T]) Canceled() bool         { return it.canceled.Load() }

// CompletedAt reports when the item first succeeded.
func (it *Item[T]) CompletedAt() (time.Time, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.completedAt, !it.completedAt.IsZero()
}

// Attempts returns a copy of the failed-attempt history, oldest first.
func (it *Item[T]) Attempts() []Attempt {
	it.mu.Lock()
	defer it.mu.Unlock()
	out := make([]Attempt, len(it.attempts))
	copy(out, it.attempts)
	return out
}

// AttemptCount is len(Attempts()) without the copy.
func (it *Item[T]) AttemptCount() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.attempts)
}

// State derives the lifecycle state. Success wins over a late cancel.
func (it *Item[T]) State() State {
	if _, ok := it.CompletedAt(); ok {
		return StateSucceeded
	}
	if it.Canceled() {
		return StateCanceled
	}
	return StatePending
}

// Cancel flags the item. It is idempotent and reports whether this call
// flipped the flag. A pending item is dropped by the next flush; on an item
// that already succeeded the flag is recorded but changes nothing else.
func (it *Item[T]) Cancel() bool {
	return it.canceled.CompareAndSwap(false, true)
}

func (it *Item[T]) recordFailure(at time.Time, err error) {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	it.mu.Lock()
	it.attempts = append(it.attempts, Attempt{At: at, Err: msg})
	it.mu.Unlock()
}

// markCompleted sets completedAt once; later calls report false.
func (it *Item[T]) markCompleted(at time.Time) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.completedAt.IsZero() {
		return false
	}
	it.completedAt = at
	return true
}
