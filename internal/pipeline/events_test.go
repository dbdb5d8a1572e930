package pipeline

import "testing"

func TestEventBusSequencesAndTrims(t *testing.T) {
	bus := NewEventBus(3)

	for i := 0; i < 5; i++ {
		bus.Publish(Event{JobID: "job", Type: EventTypeProgress, SegmentsDone: i + 1})
	}

	events := bus.Since(0)
	if len(events) != 3 {
		t.Fatalf("retained %d events, want 3", len(events))
	}
	if events[0].Seq != 3 || events[2].Seq != 5 {
		t.Fatalf("unexpected sequence range %d..%d", events[0].Seq, events[2].Seq)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("publish should stamp the event time")
	}

	if got := bus.Since(4); len(got) != 1 || got[0].Seq != 5 {
		t.Fatalf("Since(4) = %+v, want only seq 5", got)
	}
}

func TestEventBusSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	ch, cancel := bus.Subscribe()
	defer cancel()

	published := bus.Publish(Event{JobID: "job", Type: EventTypeDelivered})

	got := <-ch
	if got.Seq != published.Seq || got.Type != EventTypeDelivered {
		t.Fatalf("received %+v, want published event %+v", got, published)
	}
}

func TestEventBusSubscribeCancelIsIdempotent(t *testing.T) {
	bus := NewEventBus(10)
	_, cancel := bus.Subscribe()
	cancel()
	cancel()

	// Publishing after cancellation must not panic on a closed channel.
	bus.Publish(Event{JobID: "job", Type: EventTypeFailed})
}

func TestEventBusDropsWhenSubscriberStalls(t *testing.T) {
	bus := NewEventBus(500)
	ch, cancel := bus.Subscribe()
	defer cancel()

	// Channel buffer is 64; the rest must be dropped without blocking.
	for i := 0; i < 200; i++ {
		bus.Publish(Event{JobID: "job", Type: EventTypeProgress, SegmentsDone: i})
	}

	if got := len(ch); got != 64 {
		t.Fatalf("stalled subscriber holds %d events, want 64", got)
	}
}
