package queue

// Listener observes item lifecycle notifications.
//
// Calls are synchronous on the goroutine that caused them, in this order per
// dispatch attempt: OnAction (broadcast handlers only, before the handler
// runs), OnPersist, then OnCompleted on the first success. Enqueue fires
// OnPersist once per new item before any dispatch. Implementations must be
// safe for concurrent use and should return quickly.
type Listener[T any] interface {
	OnPersist(item *Item[T])
	OnCompleted(item *Item[T])
	OnAction(payload T)
}

// ListenerFuncs adapts optional funcs to a Listener.
type ListenerFuncs[T any] struct {
	Persist   func(item *Item[T])
	Completed func(item *Item[T])
	Action    func(payload T)
}

func (f ListenerFuncs[T]) OnPersist(item *Item[T]) {
	if f.Persist != nil {
		f.Persist(item)
	}
}

func (f ListenerFuncs[T]) OnCompleted(item *Item[T]) {
	if f.Completed != nil {
		f.Completed(item)
	}
}

func (f ListenerFuncs[T]) OnAction(payload T) {
	if f.Action != nil {
		f.Action(payload)
	}
}

// Listeners fans notifications out to ls in order. Nil entries are skipped.
func Listeners[T any](ls ...Listener[T]) Listener[T] {
	out := make(multiListener[T], 0, len(ls))
	for _, l := range ls {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

type multiListener[T any] []Listener[T]

func (m multiListener[T]) OnPersist(item *Item[T]) {
	for _, l := range m {
		l.OnPersist(item)
	}
}

func (m multiListener[T]) OnCompleted(item *Item[T]) {
	for _, l := range m {
		l.OnCompleted(item)
	}
}

func (m multiListener[T]) OnAction(payload T) {
	for _, l := range m {
		l.OnAction(payload)
	}
}

type nopListener[T any] struct{}

func (nopListener[T]) OnPersist(*Item[T])   {}
func (nopListener[T]) OnCompleted(*Item[T]) {}
func (nopListener[T]) OnAction(T)           {}
