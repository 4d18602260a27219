package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/devstack/internal/project"
	"github.com/loykin/devstack/internal/service"
)

type ServiceLister interface {
	List() []service.Info
}

type ProjectLister interface {
	List() []project.ProcessInfo
}

// Recorder composes the snapshot from the live supervisors.
type Recorder struct {
	Manager   *Manager
	Services  ServiceLister
	Projects  ProjectLister
	StartTime func(pid int) (time.Time, bool)
	Log       *slog.Logger

	mu sync.Mutex
}

// Snapshot builds the current state. Adopted services are recorded as
// running without a pid: devstack did not start them, so a later cleanup
// must not kill them.
func (r *Recorder) Snapshot() *State {
	st := NewState()
	if r.Services != nil {
		for _, in := range r.Services.List() {
			e := ServiceEntry{WasRunning: in.Status.HasPID(), AutoStart: in.AutoStart}
			if e.WasRunning && in.Ownership == "owned" {
				e.PID = in.PID
				e.StartedAt = r.startTime(in.PID)
			}
			st.Services[in.ID] = e
		}
	}
	if r.Projects != nil {
		for _, in := range r.Projects.List() {
			e := ProjectEntry{WasRunning: in.Live(), Port: in.Port}
			if e.WasRunning {
				e.PID = in.PID
				e.StartedAt = r.startTime(in.PID)
			}
			st.Projects[in.ProjectID] = e
		}
	}
	return st
}

func (r *Recorder) startTime(pid int) time.Time {
	if r.StartTime == nil || pid <= 0 {
		return time.Time{}
	}
	t, ok := r.StartTime(pid)
	if !ok {
		return time.Time{}
	}
	return t.UTC()
}

// Save writes the current state. Saves are serialized so an older snapshot
// never overwrites a newer one.
func (r *Recorder) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Manager.SaveSnapshot(ctx, r.Snapshot())
}

// SaveQuietly is the OnChange hook: failures are logged.
func (r *Recorder) SaveQuietly() {
	if err := r.Save(context.Background()); err != nil {
		log := r.Log
		if log == nil {
			log = slog.Default()
		}
		log.Warn("session snapshot not saved", "error", err)
	}
}
