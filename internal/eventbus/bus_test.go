package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, "item.completed")
	defer unsub()

	b.Publish(Event{Type: "item.persisted", Data: 1})
	b.Publish(Event{Type: "item.completed", Data: 2})

	require.Len(t, ch, 1)
	e := <-ch
	assert.Equal(t, "item.completed", e.Type)
	assert.Equal(t, 2, e.Data)
	assert.False(t, e.Time.IsZero())
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: "after"})
}
