// Package session remembers what was running so that processes orphaned by
// a crash can be cleaned up on the next launch.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loykin/devstack/internal/events"
	"github.com/loykin/devstack/internal/history"
	"github.com/loykin/devstack/internal/metrics"
	"github.com/loykin/devstack/internal/store"
)

// Key is the store key of the snapshot.
const Key = "session"

// startSkew is how far a recorded start time may drift from the live
// process before the pid is considered reused.
const startSkew = 2 * time.Second

type ServiceEntry struct {
	WasRunning bool      `json:"was_running"`
	PID        int       `json:"pid,omitempty"`
	AutoStart  bool      `json:"auto_start"`
	StartedAt  time.Time `json:"started_at,omitzero"`
}

type ProjectEntry struct {
	WasRunning bool      `json:"was_running"`
	PID        int       `json:"pid,omitempty"`
	Port       int       `json:"port,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
}

type State struct {
	Services map[string]ServiceEntry `json:"services"`
	Projects map[string]ProjectEntry `json:"projects"`
	SavedAt  time.Time               `json:"saved_at"`
}

func NewState() *State {
	return &State{Services: map[string]ServiceEntry{}, Projects: map[string]ProjectEntry{}}
}

type Options struct {
	Store    store.Store
	IsAlive  func(pid int) bool
	KillTree func(pid int) error
	// StartTime reports the creation time of a live pid. Optional.
	StartTime func(pid int) (time.Time, bool)
	Events    events.Emitter
	History   history.Recorder
	Log       *slog.Logger
}

// Manager exclusively owns the persisted snapshot.
type Manager struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	cleaned bool
	lines   []string
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if opts.IsAlive == nil || opts.KillTree == nil {
		return nil, errors.New("session: IsAlive and KillTree are required")
	}
	if opts.Events == nil {
		opts.Events = events.Discard{}
	}
	if opts.History == nil {
		opts.History = history.Nop{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Manager{opts: opts, log: opts.Log.With("component", "session")}, nil
}

func (m *Manager) SaveSnapshot(ctx context.Context, st *State) error {
	if st == nil {
		st = NewState()
	}
	if st.SavedAt.IsZero() {
		st.SavedAt = time.Now().UTC()
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.opts.Store.Set(ctx, Key, b); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSnapshot returns nil without error when nothing was saved.
func (m *Manager) LoadSnapshot(ctx context.Context) (*State, error) {
	b, err := m.opts.Store.Get(ctx, Key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	st := NewState()
	if err := json.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if st.Services == nil {
		st.Services = map[string]ServiceEntry{}
	}
	if st.Projects == nil {
		st.Projects = map[string]ProjectEntry{}
	}
	return st, nil
}

// Clear removes the snapshot. Only a confirmed clean shutdown calls it.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.opts.Store.Delete(ctx, Key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

type stale struct {
	kind      string
	id        string
	pid       int
	startedAt time.Time
}

// CleanupStale kills every process the last snapshot recorded as running
// that is still alive, and returns one line per kill. Only the first call
// does anything; later calls return nil.
func (m *Manager) CleanupStale(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cleaned {
		return nil, nil
	}
	m.cleaned = true

	st, err := m.LoadSnapshot(ctx)
	if err != nil || st == nil {
		return nil, err
	}
	var cands []stale
	for id, e := range st.Services {
		if e.WasRunning && e.PID > 0 {
			cands = append(cands, stale{kind: "service", id: id, pid: e.PID, startedAt: e.StartedAt})
		}
	}
	for id, e := range st.Projects {
		if e.WasRunning && e.PID > 0 {
			cands = append(cands, stale{kind: "project", id: id, pid: e.PID, startedAt: e.StartedAt})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].kind != cands[j].kind {
			return cands[i].kind > cands[j].kind // services first
		}
		return cands[i].id < cands[j].id
	})

	var lines []string
	for _, c := range cands {
		if !m.opts.IsAlive(c.pid) {
			continue
		}
		if m.reused(c) {
			m.log.Info("pid reused by another process, leaving it alone", "kind", c.kind, "id", c.id, "pid", c.pid)
			continue
		}
		if err := m.opts.KillTree(c.pid); err != nil {
			m.log.Warn("failed to kill stale process", "kind", c.kind, "id", c.id, "pid", c.pid, "error", err)
			continue
		}
		line := fmt.Sprintf("killed stale %s %s (pid %d)", c.kind, c.id, c.pid)
		lines = append(lines, line)
		m.log.Info(line)
		m.opts.History.Record(history.Event{
			Type: history.EventCleanup, OccurredAt: time.Now().UTC(),
			Kind: c.kind, ID: c.id, PID: c.pid, Status: "killed", Message: line,
		})
	}
	m.lines = lines
	metrics.AddStaleKilled(len(lines))
	if len(lines) > 0 {
		m.opts.Events.Emit(events.Cleanup, map[string]any{"lines": lines})
	}
	return lines, nil
}

func (m *Manager) reused(c stale) bool {
	if c.startedAt.IsZero() || m.opts.StartTime == nil {
		return false
	}
	now, ok := m.opts.StartTime(c.pid)
	if !ok {
		return false
	}
	d := now.Sub(c.startedAt)
	return d > startSkew || d < -startSkew
}

// Lines returns what the startup cleanup reported.
func (m *Manager) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}
