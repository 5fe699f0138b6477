package queue

import (
	"time"

	"flushq/internal/eventbus"
)

// Event types published by BusListener.
const (
	EventPersisted = "item.persisted"
	EventCompleted = "item.completed"
	EventAction    = "item.action"
)

// ItemEvent is the Data of persisted/completed events.
type ItemEvent struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
}

// NewItemEvent summarizes an item for event consumers.
func NewItemEvent[T any](it *Item[T]) ItemEvent {
	ev := ItemEvent{
		ID:          it.ID(),
		State:       it.State().String(),
		SubmittedAt: it.SubmittedAt(),
	}
	if at, ok := it.CompletedAt(); ok {
		ev.CompletedAt = at
	}
	if atts := it.Attempts(); len(atts) > 0 {
		ev.Attempts = len(atts)
		ev.LastError = atts[len(atts)-1].Err
	}
	return ev
}

// BusListener turns notifications into eventbus events, for observers that
// want a channel stream instead of callbacks. Delivery is lossy under
// backpressure; see eventbus.Bus.
type BusListener[T any] struct {
	Bus eventbus.Bus
}

func (b BusListener[T]) OnPersist(item *Item[T]) {
	b.Bus.Publish(eventbus.Event{Type: EventPersisted, Data: NewItemEvent(item)})
}

func (b BusListener[T]) OnCompleted(item *Item[T]) {
	b.Bus.Publish(eventbus.Event{Type: EventCompleted, Data: NewItemEvent(item)})
}

func (b BusListener[T]) OnAction(payload T) {
	b.Bus.Publish(eventbus.Event{Type: EventAction, Data: payload})
}
