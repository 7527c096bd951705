package events

import (
	"sync"
	"time"
)

// Event represents a generic event structure
type Event struct {
	Type      string
	Timestamp time.Time
	Data      interface{}
}

// FlFinishedEvent represents the event structure for finishing FL
type FlFinishedEvent struct {
	ExitCode    int32
	ExitMessage string
}

// GlobalUpdateAppliedEvent is published after a client loaded a new global model
type GlobalUpdateAppliedEvent struct {
	ClientName string
	NumParams  int
}

// TrainingFinishedEvent is published after a client finished local training
type TrainingFinishedEvent struct {
	ClientName string
	NData      int
	Loss       float64
	Perturbed  bool
	Duration   time.Duration
}

// EventBus represents the event bus that handles event subscription and dispatching
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Event
}

// NewEventBus creates a new instance of the event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe adds a new subscriber for a given event type
func (eb *EventBus) Subscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Publish sends an event to all subscribers of a given event type.
// Delivery blocks until every subscriber received the event.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	subscribers := append([]chan<- Event(nil), eb.subscribers[event.Type]...)
	eb.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber <- event
	}
}
