// Package service supervises fixed infrastructure services such as a web
// server or a database: dependency ordered start, health classification,
// bounded auto-restart and adoption of services started outside devstack.
package service

import (
	"time"

	"github.com/loykin/devstack/internal/health"
	"github.com/loykin/devstack/internal/process"
)

type Type string

const (
	TypeWebServer Type = "web-server"
	TypeDatabase  Type = "database"
	TypeRuntime   Type = "runtime"
	TypeTool      Type = "tool"
)

type Status string

const (
	StatusStopped      Status = "stopped"
	StatusStarting     Status = "starting"
	StatusRunning      Status = "running"
	StatusUnhealthy    Status = "unhealthy"
	StatusError        Status = "error"
	StatusNotInstalled Status = "not-installed"
)

// HasPID reports whether a service in this status may carry a PID.
func (s Status) HasPID() bool { return s == StatusRunning || s == StatusUnhealthy }

// Descriptor is the immutable definition of a service.
type Descriptor struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Type            Type              `json:"type"`
	Executable      string            `json:"executable"`
	Args            []string          `json:"args,omitempty"`
	WorkDir         string            `json:"work_dir,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	Port            int               `json:"port,omitempty"`
	AdditionalPorts []int             `json:"additional_ports,omitempty"`
	DependsOn       []string          `json:"depends_on,omitempty"`
	HealthCheck     health.Config     `json:"health_check"`
	AutoStart       bool              `json:"auto_start"`
	AutoRestart     bool              `json:"auto_restart"`
	RestartDelay    time.Duration     `json:"restart_delay"`
	MaxRestarts     int               `json:"max_restarts"`
}

// Ports returns the primary port followed by the additional ones.
func (d Descriptor) Ports() []int {
	out := make([]int, 0, 1+len(d.AdditionalPorts))
	if d.Port > 0 {
		out = append(out, d.Port)
	}
	for _, p := range d.AdditionalPorts {
		if p > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Running is the ownership of a live service process: either a handle we
// spawned or a bare PID discovered through the port scan.
type Running interface {
	PID() int
	isRunning()
}

type Owned struct{ Handle *process.Handle }

func (o Owned) PID() int { return o.Handle.PID }
func (Owned) isRunning() {}

type Adopted struct{ Pid int }

func (a Adopted) PID() int { return a.Pid }
func (Adopted) isRunning() {}

// Ownership names the variant for status output.
func Ownership(r Running) string {
	switch r.(type) {
	case Owned:
		return "owned"
	case Adopted:
		return "adopted"
	default:
		return ""
	}
}

// State is the mutable overlay of a descriptor.
type State struct {
	Status       Status
	RestartCount int
	LastStarted  time.Time
	LastStopped  time.Time
	ErrorMessage string

	running     Running
	lastHealth  time.Time
	nextAttempt time.Time
}

// PID returns the pid of the running process or 0.
func (s *State) PID() int {
	if s.running == nil {
		return 0
	}
	return s.running.PID()
}

// Info is a read-only snapshot of one service.
type Info struct {
	Descriptor
	Status       Status     `json:"status"`
	PID          int        `json:"pid,omitempty"`
	Ownership    string     `json:"ownership,omitempty"`
	RestartCount int        `json:"restart_count"`
	LastStarted  *time.Time `json:"last_started,omitempty"`
	LastStopped  *time.Time `json:"last_stopped,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

func (s *State) info(d Descriptor) Info {
	in := Info{
		Descriptor:   d,
		Status:       s.Status,
		PID:          s.PID(),
		Ownership:    Ownership(s.running),
		RestartCount: s.RestartCount,
		ErrorMessage: s.ErrorMessage,
	}
	if !s.LastStarted.IsZero() {
		t := s.LastStarted
		in.LastStarted = &t
	}
	if !s.LastStopped.IsZero() {
		t := s.LastStopped
		in.LastStopped = &t
	}
	return in
}
