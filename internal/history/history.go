// Package history exports lifecycle events of services and projects to
// analytics sinks. Export is asynchronous and lossy under backpressure; it
// never slows a supervisor operation.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart     EventType = "start"
	EventStop      EventType = "stop"
	EventExit      EventType = "exit"
	EventRestart   EventType = "restart"
	EventAdopt     EventType = "adopt"
	EventUnhealthy EventType = "unhealthy"
	EventCleanup   EventType = "cleanup"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind"` // service or project
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Querier is implemented by sinks that can read events back.
type Querier interface {
	Recent(ctx context.Context, id string, limit int) ([]Event, error)
}

// FindQuerier returns the first sink that can be queried, or nil.
func FindQuerier(sinks []Sink) Querier {
	for _, s := range sinks {
		if q, ok := s.(Querier); ok {
			return q
		}
	}
	return nil
}

// Recorder is what supervisors call.
type Recorder interface {
	Record(e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(Event) {}

// Dispatcher queues events and delivers them to every sink from a single
// goroutine.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(log *slog.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, 256),
		log:     log.With("component", "history"),
		timeout: 5 * time.Second,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Record enqueues e. When the queue is full the event is dropped.
func (d *Dispatcher) Record(e Event) {
	if len(d.sinks) == 0 {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- e:
	default:
		d.log.Warn("history queue full, dropping event", "type", e.Type, "id", e.ID)
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for e := range d.queue {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.Send(ctx, e); err != nil {
				d.log.Warn("history send failed", "type", e.Type, "id", e.ID, "error", err)
			}
			cancel()
		}
	}
}

// Close drains queued events and closes the sinks.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
