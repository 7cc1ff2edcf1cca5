package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesTypedAndWildcardSubscribers(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var typed, all []EventType
	bus.Subscribe(EventDecision, func(e Event) {
		mu.Lock()
		typed = append(typed, e.Type)
		mu.Unlock()
	})
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		all = append(all, e.Type)
		mu.Unlock()
	})

	bus.Publish(Event{Type: EventDecision, Data: "x"})
	bus.Publish(Event{Type: EventTradeOpened})
	bus.Drain()

	assert.Equal(t, []EventType{EventDecision}, typed)
	assert.ElementsMatch(t, []EventType{EventDecision, EventTradeOpened}, all)
}

func TestPublishSetsTimestampAndErrorPayload(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventError, func(e Event) { got <- e })

	bus.PublishError("pipeline", "tick failed", errors.New("boom"))
	e := <-got
	assert.False(t, e.Timestamp.IsZero())
	data, ok := e.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "boom", data["error"])
}
