package logger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one line of supervised output or a supervisor note.
type Entry struct {
	Time    time.Time  `json:"time"`
	Level   slog.Level `json:"level"`
	Source  string     `json:"source"`
	Message string     `json:"message"`
}

// Sink receives entries. Implementations must be safe for concurrent use and
// must not block for long.
type Sink interface {
	Write(Entry)
}

// SlogSink forwards entries to a slog logger.
type SlogSink struct{ L *slog.Logger }

func (s SlogSink) Write(e Entry) {
	if s.L == nil {
		return
	}
	s.L.LogAttrs(context.Background(), e.Level, e.Message,
		slog.String("source", e.Source), slog.Time("at", e.Time))
}

// Tee writes to every non-nil sink.
type Tee []Sink

func (t Tee) Write(e Entry) {
	for _, s := range t {
		if s != nil {
			s.Write(e)
		}
	}
}

// Ring keeps the most recent entries per source in memory.
type Ring struct {
	mu    sync.Mutex
	size  int
	lines map[string][]Entry
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 500
	}
	return &Ring{size: size, lines: make(map[string][]Entry)}
}

func (r *Ring) Write(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := append(r.lines[e.Source], e)
	if len(buf) > r.size {
		buf = append([]Entry(nil), buf[len(buf)-r.size:]...)
	}
	r.lines[e.Source] = buf
}

// Tail returns up to n most recent entries for source, oldest first. n <= 0
// returns everything retained.
func (r *Ring) Tail(source string, n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := r.lines[source]
	if n > 0 && len(buf) > n {
		buf = buf[len(buf)-n:]
	}
	return append([]Entry(nil), buf...)
}

// Drop forgets everything retained for source.
func (r *Ring) Drop(source string) {
	r.mu.Lock()
	delete(r.lines, source)
	r.mu.Unlock()
}
