package eventBus

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventNodeRegistered    EventType = "NODE_REGISTERED"
	EventNodeUnregistered  EventType = "NODE_UNREGISTERED"
	EventNodeMoved         EventType = "NODE_MOVED"
	EventGraphRebuilt      EventType = "GRAPH_REBUILT"
	EventSignalNew         EventType = "SIGNAL_NEW"
	EventSignalImproved    EventType = "SIGNAL_IMPROVED"
	EventSignalRemoved     EventType = "SIGNAL_REMOVED"
	EventRecordImproved    EventType = "RECORD_IMPROVED"
	EventResourceSpawned   EventType = "RESOURCE_SPAWNED"
	EventResourceExpired   EventType = "RESOURCE_EXPIRED"
	EventResourceCollected EventType = "RESOURCE_COLLECTED"
	EventTick              EventType = "TICK"
)

// Event holds details that the front end and the metrics collector need.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	NodeID      uint32    `json:"node_id"`
	NodeKey     uuid.UUID `json:"node_key"`
	OtherNodeID uint32    `json:"other_node_id,omitempty"`
	SignalID    string    `json:"signal_id,omitempty"`
	Distance    float64   `json:"distance,omitempty"`
	Improvement float64   `json:"improvement,omitempty"`
	Tick        int       `json:"tick,omitempty"`
	Payload     string    `json:"payload,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Z           float64   `json:"z"`
}

// EventBus manages a set of subscribers and publishes events to them.
type EventBus struct {
	subscribers []chan Event
	mu          sync.RWMutex
	dropped     atomic.Uint64
	closed      bool
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan Event, 0),
	}
}

// Publish sends an event to all subscribers. Missing ids and timestamps are
// filled in.
func (eb *EventBus) Publish(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, sub := range eb.subscribers {
		// Use a non-blocking send in case a subscriber is busy.
		select {
		case sub <- e:
		default:
			if eb.dropped.Add(1)%1000 == 1 {
				log.Printf("[eventBus] Dropping event %s: subscriber channel is full (%d dropped so far)", e.Type, eb.dropped.Load())
			}
		}
	}
}

// Subscribe returns a new channel that will receive published events.
func (eb *EventBus) Subscribe() chan Event {
	return eb.SubscribeBuffered(1024)
}

// SubscribeBuffered is Subscribe with an explicit channel capacity.
func (eb *EventBus) SubscribeBuffered(size int) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan Event, size)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.subscribers = append(eb.subscribers, ch)
	return ch
}

// Unsubscribe detaches ch and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i:i], eb.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, sub := range eb.subscribers {
		close(sub)
	}
	eb.subscribers = nil
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}
