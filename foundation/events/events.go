// Package events allows for the registering and receiving of chain events.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// messageBuffer is the number of events a subscriber can fall behind before
// events are dropped for it. A websocket send could take long.
const messageBuffer = 100

// Event represents a single message produced while mining or appending blocks.
type Event struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m       map[string]chan Event
	mu      sync.RWMutex
	dropped atomic.Uint64
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Subscribe.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Subscribe registers a new subscriber and returns its id and the channel
// events are delivered on.
func (evt *Events) Subscribe() (string, <-chan Event) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, messageBuffer)
	evt.m[id] = ch

	return id, ch
}

// Unsubscribe closes and removes the channel that was provided by
// the call to Subscribe.
func (evt *Events) Unsubscribe(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send formats the message and signals it to every registered channel. Send
// will not block waiting for a receiver on any given channel.
func (evt *Events) Send(v string, args ...any) {
	e := Event{
		Time:    time.Now().UTC(),
		Message: fmt.Sprintf(v, args...),
	}

	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- e:
		default:
			evt.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events not delivered because a subscriber
// was not keeping up.
func (evt *Events) Dropped() uint64 {
	return evt.dropped.Load()
}

// Count returns the number of subscribers.
func (evt *Events) Count() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}
