package queue

import (
	"context"
	"errors"
	"fmt"
)

// HandlerKind selects how a Handler dispatches a payload.
type HandlerKind int

const (
	// KindSingle calls one function.
	KindSingle HandlerKind = iota + 1
	// KindMulticast calls functions in order; the first error stops the chain.
	KindMulticast
	// KindBroadcast calls every subscriber, joins their errors, and emits
	// Listener.OnAction for each attempt.
	KindBroadcast
)

func (k HandlerKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMulticast:
		return "multicast"
	case KindBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseHandlerKind maps the config spelling of a kind.
func ParseHandlerKind(s string) (HandlerKind, error) {
	switch s {
	case "", "single":
		return KindSingle, nil
	case "multicast":
		return KindMulticast, nil
	case "broadcast":
		return KindBroadcast, nil
	default:
		return 0, fmt.Errorf("unknown handler mode %q (use single, multicast or broadcast)", s)
	}
}

// Func processes one payload. Returning nil marks success; an error (or a
// panic) marks a failed attempt and the item is retried on the next flush.
type Func[T any] func(ctx context.Context, payload T) error

// Handler is the dispatch target bound to an Engine. The kind is fixed at
// construction.
type Handler[T any] struct {
	kind HandlerKind
	fns  []Func[T]
}

func Single[T any](fn Func[T]) Handler[T] {
	if fn == nil {
		return Handler[T]{}
	}
	return Handler[T]{kind: KindSingle, fns: []Func[T]{fn}}
}

func Multicast[T any](fns ...Func[T]) Handler[T] {
	return Handler[T]{kind: KindMulticast, fns: compact(fns)}
}

func Broadcast[T any](fns ...Func[T]) Handler[T] {
	return Handler[T]{kind: KindBroadcast, fns: compact(fns)}
}

func compact[T any](fns []Func[T]) []Func[T] {
	out := make([]Func[T], 0, len(fns))
	for _, fn := range fns {
		if fn != nil {
			out = append(out, fn)
		}
	}
	return out
}

func (h Handler[T]) Kind() HandlerKind { return h.kind }

// Len is the number of bound functions.
func (h Handler[T]) Len() int { return len(h.fns) }

func (h Handler[T]) validate() error {
	if h.kind == 0 {
		return ErrNoHandler
	}
	// A broadcast with no subscribers is valid: the event still fires.
	if h.kind != KindBroadcast && len(h.fns) == 0 {
		return ErrNoHandler
	}
	return nil
}

// invoke runs the handler for one payload, converting panics into errors.
func (h Handler[T]) invoke(ctx context.Context, payload T) error {
	switch h.kind {
	case KindBroadcast:
		var errs []error
		for _, fn := range h.fns {
			if err := call(ctx, fn, payload); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	default:
		for _, fn := range h.fns {
			if err := call(ctx, fn, payload); err != nil {
				return err
			}
		}
		return nil
	}
}

func call[T any](ctx context.Context, fn Func[T], payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx, payload)
}
