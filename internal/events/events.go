// Package events fans supervisor notifications out to UI subscribers.
// Delivery is best effort: a slow subscriber loses events rather than
// stalling the supervisor.
package events

import (
	"sync"
	"time"
)

type Name string

const (
	ProcessStarted Name = "process-started"
	ProcessStopped Name = "process-stopped"
	BuildStatus    Name = "build-status"
	ServiceStatus  Name = "service-status"
	Cleanup        Name = "cleanup"

	// ProjectsChanged fires when the project list was edited outside the API.
	ProjectsChanged Name = "projects-changed"
)

type Event struct {
	Name    Name           `json:"event"`
	Time    time.Time      `json:"time"`
	Payload map[string]any `json:"payload"`
}

// Emitter is what supervisors depend on.
type Emitter interface {
	Emit(name Name, payload map[string]any)
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Emit never blocks.
func (b *Bus) Emit(name Name, payload map[string]any) {
	ev := Event{Name: name, Time: time.Now(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Name, map[string]any) {}
