package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventRunStarted     EventType = "RUN_STARTED"
	EventRunCompleted   EventType = "RUN_COMPLETED"
	EventDecision       EventType = "DECISION"
	EventTradeOpened    EventType = "TRADE_OPENED"
	EventTradeClosed    EventType = "TRADE_CLOSED"
	EventCircuitBreaker EventType = "CIRCUIT_BREAKER_UPDATE"
	EventKillSwitch     EventType = "KILL_SWITCH"
	EventLockReleased   EventType = "LOCK_RELEASED"
	EventError          EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id,omitempty"`
	Data      interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus fans events out to in-process subscribers. Delivery is
// asynchronous and unordered across subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
	wg          sync.WaitGroup
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	deliver := func(sub Subscriber) {
		eb.wg.Add(1)
		go func() {
			defer eb.wg.Done()
			sub(event)
		}()
	}
	for _, sub := range eb.subscribers[event.Type] {
		deliver(sub)
	}
	for _, sub := range eb.allSubs {
		deliver(sub)
	}
}

// Drain blocks until every delivery started so far has returned.
func (eb *EventBus) Drain() {
	eb.wg.Wait()
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventError, Data: data})
}
