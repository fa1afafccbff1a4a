// Package stream fans completed posting events out to live subscribers
// (SSE clients watching the ledger).
package stream

import (
	"sync"
	"time"
)

// Event is one executed posting leg as seen by watchers.
type Event struct {
	EntryID     string    `json:"entry_id"`
	AccountID   string    `json:"account_id"`
	Kind        string    `json:"kind"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Rate        float64   `json:"rate,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

const subscriberBuffer = 16

// Stream delivers events to every active subscriber. A subscriber that
// falls behind loses events rather than blocking publishers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away.
func (s *Stream) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to all subscribers without blocking.
func (s *Stream) Publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current listener count.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
