package pipeline

import (
	"sync"
	"time"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeQueued    EventType = "queued"
	EventTypeStage     EventType = "stage"
	EventTypeProgress  EventType = "progress"
	EventTypeDelivered EventType = "delivered"
	EventTypeBusy      EventType = "busy"
	EventTypeFailed    EventType = "failed"
)

// Event is a sequenced payload consumed by websocket subscribers and
// incremental polls.
type Event struct {
	Seq           int64     `json:"seq"`
	Timestamp     time.Time `json:"timestamp"`
	JobID         string    `json:"jobId"`
	OwnerID       int64     `json:"ownerId"`
	Type          EventType `json:"type"`
	Stage         string    `json:"stage,omitempty"`
	SegmentsDone  int       `json:"segmentsDone,omitempty"`
	SegmentsTotal int       `json:"segmentsTotal,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// EventBus stores recent events, provides incremental reads, and fans
// out live events to subscribers. Slow subscribers lose events rather
// than stall the pipeline.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	nextSubID int
	subs      map[int]chan Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[int]chan Event),
	}
}

// Publish appends one event, assigns sequence and timestamp, and fans
// it out to live subscribers.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers a live event channel. The returned cancel func
// must be called when the subscriber goes away.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
