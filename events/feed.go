package events

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// Record is the envelope delivered to Feed subscribers. Seq increases by one
// per emitted notification, starting at 1.
type Record struct {
	Seq   uint64 `json:"seq"`
	Name  Name   `json:"name"`
	Event Event  `json:"event"`
}

// Feed fans committed notifications out to any number of subscribers.
// Subscribers that stop reading block Emit, the same as go-ethereum feeds.
type Feed struct {
	feed event.Feed
	seq  uint64
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{}
}

// Emit implements Emitter.
func (f *Feed) Emit(e Event) {
	f.seq++
	f.feed.Send(Record{Seq: f.seq, Name: e.EventName(), Event: e})
}

// Subscribe registers ch to receive every future Record.
func (f *Feed) Subscribe(ch chan<- Record) event.Subscription {
	return f.feed.Subscribe(ch)
}

// Recorder keeps every notification in memory, in emission order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded notifications.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the names of the recorded notifications.
func (r *Recorder) Names() []Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]Name, len(r.events))
	for i, e := range r.events {
		names[i] = e.EventName()
	}
	return names
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
