package project

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/devstack/internal/env"
	"github.com/loykin/devstack/internal/events"
	"github.com/loykin/devstack/internal/framework"
	"github.com/loykin/devstack/internal/history"
	"github.com/loykin/devstack/internal/logger"
	"github.com/loykin/devstack/internal/metrics"
	"github.com/loykin/devstack/internal/process"
)

const (
	DefaultStopGrace     = 5 * time.Second
	DefaultRestartSettle = time.Second
)

// Spawner is the part of process.Registry the manager uses.
type Spawner interface {
	Spawn(id string, spec process.Spec) (*process.Handle, error)
	Release(id string)
	KillTree(pid int) error
}

type Options struct {
	Spawner Spawner
	Events  events.Emitter
	History history.Recorder
	Log     *slog.Logger
	Env     *env.Env
	// Sink receives every output line with the project id as source.
	Sink logger.Sink
	// Writers opens the rotating stdout/stderr files of a project. Nil
	// disables file output.
	Writers func(name string) (io.WriteCloser, io.WriteCloser, error)
	// LineBuffer bounds each stream's channel.
	LineBuffer int

	StopGrace     time.Duration
	RestartSettle time.Duration
	Sleep         func(time.Duration)
	OnChange      func()
}

type entry struct {
	desc      Descriptor
	info      ProcessInfo
	handle    *process.Handle
	pump      *pump
	milestone atomic.Value // Milestone
}

func (e *entry) snapshot() ProcessInfo {
	in := e.info
	if m, ok := e.milestone.Load().(Milestone); ok {
		in.Milestone = m
	}
	return in
}

// Manager runs projects on explicit user request. There is no dependency
// graph and no auto-restart.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	opts    Options
	log     *slog.Logger
}

func NewManager(opts Options) *Manager {
	if opts.Spawner == nil {
		opts.Spawner = process.NewRegistry(opts.Log)
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
	if opts.Env == nil {
		opts.Env = env.New()
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	if opts.RestartSettle < 0 {
		opts.RestartSettle = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Manager{
		entries: make(map[string]*entry),
		opts:    opts,
		log:     opts.Log.With("component", "project"),
	}
}

func (m *Manager) changed() {
	if m.opts.OnChange != nil {
		m.opts.OnChange()
	}
}

func (m *Manager) setStatus(e *entry, to Status) {
	from := e.info.Status
	e.info.Status = to
	metrics.RecordTransition("project", e.desc.ID, string(from), string(to))
}

func (m *Manager) record(typ history.EventType, e *entry, msg string) {
	m.opts.History.Record(history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Kind:       "project",
		ID:         e.desc.ID,
		PID:        e.info.PID,
		Status:     string(e.info.Status),
		Message:    msg,
	})
}

func (m *Manager) buildStatus(id string, c Classification) {
	payload := map[string]any{"id": id, "milestone": string(c.Milestone)}
	if c.Line != "" {
		payload["line"] = c.Line
	}
	if c.Percent >= 0 {
		payload["percent"] = c.Percent
	}
	m.opts.Events.Emit(events.BuildStatus, payload)
}

// Start launches d. A project that is already running is returned as is.
func (m *Manager) Start(ctx context.Context, d Descriptor) (ProcessInfo, error) {
	if err := d.Validate(); err != nil {
		return ProcessInfo{}, err
	}
	m.mu.Lock()
	info, started, err := m.startLocked(d)
	m.mu.Unlock()
	if started {
		m.changed()
	}
	return info, err
}

func (m *Manager) startLocked(d Descriptor) (ProcessInfo, bool, error) {
	if e, ok := m.entries[d.ID]; ok && e.info.Live() {
		return e.snapshot(), false, nil
	}
	delete(m.entries, d.ID)

	inv := framework.Build(d.Type, d.Command(), d.Port)
	spec := process.Shell(inv.Command)
	spec.WorkDir = d.Path
	spec.Env = m.opts.Env.Merge(env.Var(d.EnvVars), env.Var(inv.Env))
	spec.Capture = true

	e := &entry{desc: d, info: ProcessInfo{ProjectID: d.ID, Port: d.Port, Command: inv.Command}}
	m.setStatus(e, StatusStarting)
	m.buildStatus(d.ID, Classification{Milestone: MilestoneStarting, Percent: -1})

	h, err := m.opts.Spawner.Spawn(d.ID, spec)
	if err != nil {
		m.setStatus(e, StatusError)
		m.buildStatus(d.ID, Classification{Milestone: MilestoneError, Line: err.Error(), Percent: -1})
		m.record(history.EventExit, e, err.Error())
		m.log.Error("project spawn failed", "project", d.ID, "command", inv.Command, "error", err)
		return ProcessInfo{}, false, fmt.Errorf("start %s: %w: %w", d.ID, ErrSpawnFailed, err)
	}
	e.handle = h
	e.info.PID = h.PID
	e.info.StartedAt = h.StartedAt
	e.milestone.Store(MilestoneStarting)
	m.setStatus(e, StatusRunning)
	m.entries[d.ID] = e

	p := &pump{id: d.ID, typ: d.Type, sink: m.opts.Sink, log: m.log}
	p.notify = func(c Classification) {
		e.milestone.Store(c.Milestone)
		metrics.IncMilestone(d.ID, string(c.Milestone))
		m.buildStatus(d.ID, c)
	}
	if m.opts.Writers != nil {
		out, errw, werr := m.opts.Writers(d.ID)
		if werr != nil {
			m.log.Warn("project log files unavailable", "project", d.ID, "error", werr)
		}
		p.stdout, p.stderr = out, errw
	}
	p.start(h.Stdout, h.Stderr, m.opts.LineBuffer)
	e.pump = p
	go m.wait(e, h)

	m.opts.Events.Emit(events.ProcessStarted, map[string]any{"id": d.ID, "kind": "project", "pid": h.PID, "port": d.Port})
	metrics.IncStart("project", d.ID)
	m.record(history.EventStart, e, inv.Command)
	m.log.Info("project started", "project", d.ID, "pid", h.PID, "port", d.Port, "command", inv.Command)
	return e.snapshot(), true, nil
}

// wait records an exit that devstack did not ask for.
func (m *Manager) wait(e *entry, h *process.Handle) {
	<-h.Done()
	ex, _ := process.TryReap(h)

	m.mu.Lock()
	if cur, ok := m.entries[e.desc.ID]; !ok || cur != e || e.info.Status == StatusStopping {
		m.mu.Unlock()
		return
	}
	code := ex.Code
	e.info.ExitCode = &code
	to := StatusStopped
	if !ex.Success() {
		to = StatusError
		e.info.Error = fmt.Sprintf("exited with code %d", code)
	}
	m.setStatus(e, to)
	m.opts.Spawner.Release(e.desc.ID)
	m.opts.Events.Emit(events.ProcessStopped, map[string]any{"id": e.desc.ID, "kind": "project", "pid": h.PID, "code": code, "status": string(to)})
	m.record(history.EventExit, e, e.info.Error)
	m.log.Info("project exited", "project", e.desc.ID, "pid", h.PID, "code", code)
	m.mu.Unlock()
	m.changed()
}

// Stop kills the project's process tree and forgets it.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	err := m.stopLocked(id)
	m.mu.Unlock()
	if err == nil {
		m.changed()
	}
	return err
}

func (m *Manager) stopLocked(id string) error {
	e, ok := m.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.entries, id)
	if !e.info.Live() {
		return nil
	}
	m.setStatus(e, StatusStopping)
	pid := e.info.PID
	if _, exited := process.TryReap(e.handle); !exited {
		if err := m.opts.Spawner.KillTree(pid); err != nil {
			m.log.Warn("kill failed", "project", id, "pid", pid, "error", err)
		}
		if _, ok := e.handle.Wait(m.opts.StopGrace); !ok {
			m.log.Warn("project did not exit within grace period", "project", id, "pid", pid)
		}
	}
	m.opts.Spawner.Release(id)
	m.setStatus(e, StatusStopped)
	m.opts.Events.Emit(events.ProcessStopped, map[string]any{"id": id, "kind": "project", "pid": pid, "status": string(StatusStopped)})
	metrics.IncStop("project", id)
	m.record(history.EventStop, e, "")
	m.log.Info("project stopped", "project", id, "pid", pid)
	return nil
}

// Restart stops the running instance of d.ID, sleeps for the settle delay
// and starts d. The new descriptor wins over the one the instance was
// started with, so edits take effect. An untracked project is just started.
func (m *Manager) Restart(ctx context.Context, d Descriptor) (ProcessInfo, error) {
	if err := d.Validate(); err != nil {
		return ProcessInfo{}, err
	}
	m.mu.Lock()
	_, tracked := m.entries[d.ID]
	if tracked {
		_ = m.stopLocked(d.ID)
		m.opts.Sleep(m.opts.RestartSettle)
	}
	info, _, err := m.startLocked(d)
	if err == nil && tracked {
		m.record(history.EventRestart, m.entries[d.ID], "manual")
	}
	m.mu.Unlock()
	m.changed()
	return info, err
}

func (m *Manager) Get(id string) (ProcessInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ProcessInfo{}, false
	}
	return e.snapshot(), true
}

// Descriptor returns the descriptor a tracked project was started with.
func (m *Manager) Descriptor(id string) (Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// List returns tracked processes ordered by project id.
func (m *Manager) List() []ProcessInfo {
	m.mu.Lock()
	out := make([]ProcessInfo, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.snapshot())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}

// StopAll stops every tracked project.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_ = m.stopLocked(id)
	}
	m.mu.Unlock()
	if len(ids) > 0 {
		m.changed()
	}
}
