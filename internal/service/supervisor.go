package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/loykin/devstack/internal/env"
	"github.com/loykin/devstack/internal/events"
	"github.com/loykin/devstack/internal/health"
	"github.com/loykin/devstack/internal/history"
	"github.com/loykin/devstack/internal/metrics"
	"github.com/loykin/devstack/internal/portscan"
	"github.com/loykin/devstack/internal/process"
)

const (
	DefaultTick          = 5 * time.Second
	DefaultRestartSettle = time.Second
	DefaultStopGrace     = 5 * time.Second
)

// Spawner is the part of process.Registry the supervisor uses.
type Spawner interface {
	Spawn(id string, spec process.Spec) (*process.Handle, error)
	Release(id string)
	KillTree(pid int) error
	IsAlive(pid int) bool
}

type Options struct {
	Spawner Spawner
	Prober  health.Prober
	Scanner portscan.Scanner
	Events  events.Emitter
	History history.Recorder
	Log     *slog.Logger
	// Env composes the spawn environment; nil inherits devstack's own.
	Env *env.Env

	Tick          time.Duration
	RestartSettle time.Duration
	StopGrace     time.Duration

	// Sleep and Now are replaced in tests.
	Sleep func(time.Duration)
	Now   func() time.Time
	// ExecutableExists is consulted once per service at construction.
	ExecutableExists func(path string) bool
	// OnChange runs after any operation that changed a service, outside the
	// supervisor lock.
	OnChange func()
}

// Supervisor owns the state of every service. A single lock serializes all
// operations; status reads go through the published Table instead.
type Supervisor struct {
	mu      sync.Mutex
	descs   map[string]Descriptor
	states  map[string]*State
	order   []string
	changed bool

	table *Table
	opts  Options
	log   *slog.Logger
}

// New validates descs, marks services whose executable is missing as
// not-installed and adopts services already listening on their ports.
func New(ctx context.Context, descs []Descriptor, opts Options) (*Supervisor, error) {
	byID, err := validate(descs)
	if err != nil {
		return nil, err
	}
	order, _ := topoOrder(byID)
	if opts.Spawner == nil {
		opts.Spawner = process.NewRegistry(opts.Log)
	}
	if opts.Prober == nil {
		opts.Prober = health.NewChecker(opts.Spawner.IsAlive)
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
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.RestartSettle < 0 {
		opts.RestartSettle = 0
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ExecutableExists == nil {
		opts.ExecutableExists = Exists
	}

	s := &Supervisor{
		descs:  byID,
		states: make(map[string]*State, len(byID)),
		order:  order,
		table:  newTable(),
		opts:   opts,
		log:    opts.Log.With("component", "service"),
	}
	for _, id := range order {
		st := &State{Status: StatusStopped}
		if d := byID[id]; !opts.ExecutableExists(d.Executable) {
			st.Status = StatusNotInstalled
			st.ErrorMessage = fmt.Sprintf("executable not found: %s", d.Executable)
			s.log.Info("service not installed", "service", id, "executable", d.Executable)
		}
		s.states[id] = st
		metrics.RecordTransition("service", id, "", string(st.Status))
	}
	s.publish()
	if opts.Scanner != nil {
		if _, err := s.Adopt(ctx); err != nil {
			s.log.Warn("initial adoption failed", "error", err)
		}
	}
	return s, nil
}

func (s *Supervisor) lock() { s.mu.Lock() }

// unlock publishes the table and notifies OnChange when the operation
// changed anything.
func (s *Supervisor) unlock() {
	s.publish()
	changed := s.changed
	s.changed = false
	s.mu.Unlock()
	if changed && s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

func (s *Supervisor) publish() {
	rows := make(map[string]Info, len(s.states))
	for id, st := range s.states {
		rows[id] = st.info(s.descs[id])
	}
	s.table.publish(slices.Clone(s.order), rows)
}

// Table exposes the published status table.
func (s *Supervisor) Table() *Table { return s.table }

func (s *Supervisor) Status(id string) (Info, error) {
	in, ok := s.table.Get(id)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return in, nil
}

func (s *Supervisor) List() []Info { return s.table.List() }

// IsRunning reports whether the service has a live process.
func (s *Supervisor) IsRunning(id string) bool {
	in, ok := s.table.Get(id)
	return ok && in.Status.HasPID()
}

// Descriptor returns the definition of id.
func (s *Supervisor) Descriptor(id string) (Descriptor, bool) {
	d, ok := s.descs[id]
	return d, ok
}

func (s *Supervisor) transition(id string, st *State, to Status, msg string) {
	from := st.Status
	st.Status = to
	st.ErrorMessage = msg
	s.changed = true
	if from == to {
		return
	}
	metrics.RecordTransition("service", id, string(from), string(to))
	payload := map[string]any{"id": id, "status": string(to), "previous": string(from)}
	if pid := st.PID(); pid > 0 {
		payload["pid"] = pid
	}
	if msg != "" {
		payload["message"] = msg
	}
	s.opts.Events.Emit(events.ServiceStatus, payload)
	s.log.Debug("service transition", "service", id, "from", from, "to", to, "message", msg)
}

func (s *Supervisor) record(typ history.EventType, id string, st *State, msg string) {
	s.opts.History.Record(history.Event{
		Type:       typ,
		OccurredAt: s.opts.Now().UTC(),
		Kind:       "service",
		ID:         id,
		PID:        st.PID(),
		Status:     string(st.Status),
		Message:    msg,
	})
}

// Start starts id after its dependencies. Starting a running service is a
// no-op. A successful start resets the restart counter.
func (s *Supervisor) Start(ctx context.Context, id string) error {
	s.lock()
	defer s.unlock()
	return s.startLocked(ctx, id, nil)
}

func (s *Supervisor) startLocked(ctx context.Context, id string, chain []string) error {
	d, ok := s.descs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	st := s.states[id]
	if st.Status.HasPID() {
		return nil
	}
	if st.Status == StatusNotInstalled {
		return fmt.Errorf("start %s: %w: %s", id, ErrExecutableMissing, d.Executable)
	}
	if slices.Contains(chain, id) {
		return fmt.Errorf("%w: %v", ErrDependencyCycle, append(chain, id))
	}
	for _, dep := range d.DependsOn {
		if err := s.startLocked(ctx, dep, append(chain, id)); err != nil {
			s.log.Warn("dependency failed", "service", id, "dependency", dep, "error", err)
			return &DependencyError{Service: id, Dependency: dep, Err: err}
		}
	}
	if err := s.spawnLocked(id, st); err != nil {
		return err
	}
	st.RestartCount = 0
	metrics.IncStart("service", id)
	s.record(history.EventStart, id, st, "")
	return nil
}

// spawnLocked launches the process and moves st to running or error. The
// restart counter is left alone.
func (s *Supervisor) spawnLocked(id string, st *State) error {
	d := s.descs[id]
	s.dropLeftover(id, st)
	s.transition(id, st, StatusStarting, "")

	spec := process.Spec{Path: d.Executable, Args: d.Args, WorkDir: d.WorkDir}
	if s.opts.Env != nil || len(d.Env) > 0 {
		e := s.opts.Env
		if e == nil {
			e = env.New()
		}
		spec.Env = e.Merge(env.Var(d.Env))
	}
	h, err := s.opts.Spawner.Spawn(id, spec)
	if err != nil {
		s.transition(id, st, StatusError, err.Error())
		s.record(history.EventExit, id, st, err.Error())
		s.log.Error("service spawn failed", "service", id, "error", err)
		return fmt.Errorf("start %s: %w: %w", id, ErrSpawnFailed, err)
	}
	now := s.opts.Now()
	st.running = Owned{Handle: h}
	st.LastStarted = now
	st.lastHealth = now
	st.nextAttempt = time.Time{}
	s.transition(id, st, StatusRunning, "")
	s.opts.Events.Emit(events.ProcessStarted, map[string]any{"id": id, "kind": "service", "pid": h.PID})
	s.log.Info("service started", "service", id, "pid", h.PID)
	go s.watch(id, h)
	return nil
}

// watch reaps an owned process as soon as it exits.
func (s *Supervisor) watch(id string, h *process.Handle) {
	<-h.Done()
	s.lock()
	defer s.unlock()
	st := s.states[id]
	if o, ok := st.running.(Owned); ok && o.Handle == h {
		s.reapLocked(id, st)
	}
}

// dropLeftover kills a process still attached to a service that is not
// considered running.
func (s *Supervisor) dropLeftover(id string, st *State) {
	if st.running == nil {
		return
	}
	s.killLocked(id, st)
}

func (s *Supervisor) killLocked(id string, st *State) {
	switch r := st.running.(type) {
	case Owned:
		if _, exited := process.TryReap(r.Handle); !exited {
			if err := s.opts.Spawner.KillTree(r.Handle.PID); err != nil {
				s.log.Warn("kill failed", "service", id, "pid", r.Handle.PID, "error", err)
			}
			if _, ok := r.Handle.Wait(s.opts.StopGrace); !ok {
				s.log.Warn("process did not exit within grace period", "service", id, "pid", r.Handle.PID, "grace", s.opts.StopGrace)
			}
		}
		s.opts.Spawner.Release(id)
	case Adopted:
		if err := s.opts.Spawner.KillTree(r.Pid); err != nil {
			s.log.Warn("kill failed", "service", id, "pid", r.Pid, "error", err)
		}
	}
	st.running = nil
}

// Stop kills the service whether devstack spawned it or adopted it. Kill
// failures are logged only. Stopping a service in error clears the error.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	s.lock()
	defer s.unlock()
	return s.stopLocked(id)
}

func (s *Supervisor) stopLocked(id string) error {
	if _, ok := s.descs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	st := s.states[id]
	switch st.Status {
	case StatusStopped, StatusNotInstalled:
		return nil
	}
	pid := st.PID()
	s.killLocked(id, st)
	st.LastStopped = s.opts.Now()
	st.nextAttempt = time.Time{}
	s.transition(id, st, StatusStopped, "")
	if pid > 0 {
		metrics.IncStop("service", id)
		s.record(history.EventStop, id, st, "")
		s.opts.Events.Emit(events.ProcessStopped, map[string]any{"id": id, "kind": "service", "pid": pid})
		s.log.Info("service stopped", "service", id, "pid", pid)
	}
	return nil
}

// Restart stops, sleeps for the settle delay and starts again. Stop
// problems never prevent the start.
func (s *Supervisor) Restart(ctx context.Context, id string) error {
	s.lock()
	defer s.unlock()
	if err := s.stopLocked(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		s.log.Warn("stop before restart failed", "service", id, "error", err)
	}
	s.opts.Sleep(s.opts.RestartSettle)
	if err := s.startLocked(ctx, id, nil); err != nil {
		return err
	}
	s.record(history.EventRestart, id, s.states[id], "manual")
	return nil
}

// reapLocked handles an exited owned handle or a vanished adopted pid.
// It reports whether the service was found dead.
func (s *Supervisor) reapLocked(id string, st *State) bool {
	switch r := st.running.(type) {
	case Owned:
		ex, exited := process.TryReap(r.Handle)
		if !exited {
			return false
		}
		msg := fmt.Sprintf("process exited with code %d", ex.Code)
		pid := r.Handle.PID
		s.opts.Spawner.Release(id)
		st.running = nil
		st.LastStopped = ex.ExitedAt
		s.transition(id, st, StatusError, msg)
		s.record(history.EventExit, id, st, msg)
		s.opts.Events.Emit(events.ProcessStopped, map[string]any{"id": id, "kind": "service", "pid": pid, "code": ex.Code})
		s.log.Warn("service exited", "service", id, "pid", pid, "code", ex.Code)
		return true
	case Adopted:
		if s.opts.Spawner.IsAlive(r.Pid) {
			return false
		}
		msg := fmt.Sprintf("adopted process %d exited", r.Pid)
		st.running = nil
		st.LastStopped = s.opts.Now()
		s.transition(id, st, StatusError, msg)
		s.record(history.EventExit, id, st, msg)
		s.log.Warn("adopted service exited", "service", id, "pid", r.Pid)
		return true
	}
	return false
}

// CheckHealth reaps the process and probes it. A failing probe makes the
// service unhealthy; an exited process makes it error.
func (s *Supervisor) CheckHealth(ctx context.Context, id string) (health.Result, error) {
	s.lock()
	defer s.unlock()
	return s.checkLocked(ctx, id)
}

func (s *Supervisor) checkLocked(ctx context.Context, id string) (health.Result, error) {
	d, ok := s.descs[id]
	if !ok {
		return health.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	st := s.states[id]
	if s.reapLocked(id, st) {
		return health.Result{Err: errors.New(st.ErrorMessage)}, nil
	}
	if !st.Status.HasPID() {
		return health.Result{Err: fmt.Errorf("service %s is %s", id, st.Status)}, nil
	}
	st.lastHealth = s.opts.Now()
	if !d.HealthCheck.Enabled {
		return health.Result{Healthy: true}, nil
	}
	cfg := d.HealthCheck.WithDefaults()
	var res health.Result
	for i := 0; i < cfg.Retries; i++ {
		res = s.opts.Prober.Check(ctx, cfg, st.PID())
		if res.Healthy || ctx.Err() != nil {
			break
		}
	}
	switch {
	case res.Healthy && st.Status == StatusUnhealthy:
		st.nextAttempt = time.Time{}
		s.transition(id, st, StatusRunning, "")
		s.log.Info("service recovered", "service", id)
	case !res.Healthy:
		metrics.IncHealthFailure(id)
		if st.Status != StatusUnhealthy {
			s.record(history.EventUnhealthy, id, st, res.Message())
			s.log.Warn("service unhealthy", "service", id, "error", res.Message())
		}
		s.transition(id, st, StatusUnhealthy, res.Message())
	}
	return res, nil
}

// AutoRestartTick restarts services in error or unhealthy that allow it.
// The n-th attempt is not made before Backoff(n) has elapsed since the
// failure was first seen. Once the limit is reached the service stays in
// error until a manual start. Failures are absorbed.
func (s *Supervisor) AutoRestartTick(ctx context.Context) {
	s.lock()
	defer s.unlock()
	now := s.opts.Now()
	for _, id := range s.order {
		d, st := s.descs[id], s.states[id]
		if !d.AutoRestart || (st.Status != StatusError && st.Status != StatusUnhealthy) {
			continue
		}
		if st.RestartCount >= d.MaxRestarts {
			msg := fmt.Sprintf("%s (%d)", ErrRestartLimit, d.MaxRestarts)
			if st.Status != StatusError || st.ErrorMessage != msg {
				s.dropLeftover(id, st)
				s.transition(id, st, StatusError, msg)
				s.log.Error("auto-restart gave up", "service", id, "restarts", st.RestartCount)
			}
			continue
		}
		if st.nextAttempt.IsZero() {
			st.nextAttempt = now.Add(Backoff(st.RestartCount+1, d.RestartDelay, MaxBackoff))
		}
		if now.Before(st.nextAttempt) {
			continue
		}
		st.RestartCount++
		metrics.IncAutoRestart(id)
		s.log.Info("auto-restarting service", "service", id, "attempt", st.RestartCount, "max", d.MaxRestarts)
		if err := s.spawnLocked(id, st); err != nil {
			st.nextAttempt = time.Time{}
			s.log.Warn("auto-restart failed", "service", id, "error", err)
			continue
		}
		s.record(history.EventRestart, id, st, fmt.Sprintf("auto-restart %d/%d", st.RestartCount, d.MaxRestarts))
	}
}

// Adopt marks services as running when an external process listens on one
// of their ports. Not installed services and pids already tracked are
// skipped. It returns how many services were adopted.
func (s *Supervisor) Adopt(ctx context.Context) (int, error) {
	if s.opts.Scanner == nil {
		return 0, nil
	}
	entries, err := s.opts.Scanner.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("port scan: %w", err)
	}
	listeners := portscan.Listeners(entries)

	s.lock()
	defer s.unlock()
	known := make(map[int]bool)
	for _, st := range s.states {
		if pid := st.PID(); pid > 0 {
			known[pid] = true
		}
	}
	adopted := 0
	for _, id := range s.order {
		d, st := s.descs[id], s.states[id]
		if st.Status == StatusNotInstalled || st.Status.HasPID() {
			continue
		}
		for _, port := range d.Ports() {
			pid, ok := listeners[port]
			if !ok || known[pid] {
				continue
			}
			s.dropLeftover(id, st)
			st.running = Adopted{Pid: pid}
			st.LastStarted = s.opts.Now()
			st.lastHealth = st.LastStarted
			st.nextAttempt = time.Time{}
			known[pid] = true
			s.transition(id, st, StatusRunning, "")
			metrics.IncAdoption(id)
			s.record(history.EventAdopt, id, st, fmt.Sprintf("listening on port %d", port))
			s.log.Info("adopted external service", "service", id, "pid", pid, "port", port)
			adopted++
			break
		}
	}
	return adopted, nil
}

// Tick runs one pass of the background loop: reap and health checks that
// are due, adoption, then auto-restart.
func (s *Supervisor) Tick(ctx context.Context) {
	now := s.opts.Now()
	for _, id := range s.order {
		s.lock()
		st, d := s.states[id], s.descs[id]
		s.reapLocked(id, st)
		interval := d.HealthCheck.WithDefaults().Interval
		due := st.Status.HasPID() && d.HealthCheck.Enabled && !now.Before(st.lastHealth.Add(interval))
		if due {
			if _, err := s.checkLocked(ctx, id); err != nil {
				s.log.Warn("health check failed", "service", id, "error", err)
			}
		}
		s.unlock()
	}
	if _, err := s.Adopt(ctx); err != nil {
		s.log.Warn("adoption failed", "error", err)
	}
	s.AutoRestartTick(ctx)
}

// Run drives Tick until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	t := time.NewTicker(s.opts.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// StartAutoStart starts every installed service flagged auto_start.
func (s *Supervisor) StartAutoStart(ctx context.Context) error {
	s.lock()
	defer s.unlock()
	var errs []error
	for _, id := range s.order {
		if !s.descs[id].AutoStart || s.states[id].Status == StatusNotInstalled {
			continue
		}
		if err := s.startLocked(ctx, id, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every service, dependents before their dependencies.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.lock()
	defer s.unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		_ = s.stopLocked(s.order[i])
	}
}
