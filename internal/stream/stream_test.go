package stream

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	ev := Event{EntryID: "e1", Kind: "credit", AmountMinor: 100, Currency: "RSD", Timestamp: time.Now()}
	s.Publish(ev)

	select {
	case got := <-ch:
		if got.EntryID != "e1" {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	s := New()
	_, cancel := s.Subscribe()
	if s.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", s.Subscribers())
	}
	cancel()
	cancel() // idempotent
	if s.Subscribers() != 0 {
		t.Fatalf("subscribers after cancel = %d", s.Subscribers())
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		s.Publish(Event{EntryID: "e"})
	}
	if n := len(ch); n != subscriberBuffer {
		t.Fatalf("buffered %d events, want %d", n, subscriberBuffer)
	}
}
