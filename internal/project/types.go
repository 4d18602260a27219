// Package project runs developer projects: dev servers started and stopped
// by the user, with their output tee'd to log files and classified into
// build milestones for the UI.
package project

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/devstack/internal/framework"
)

var (
	ErrNotFound    = errors.New("project not found")
	ErrSpawnFailed = errors.New("spawn failed")
	ErrInvalid     = errors.New("invalid project")
)

type Descriptor struct {
	ID           string            `toml:"id" json:"id"`
	Name         string            `toml:"name" json:"name"`
	Path         string            `toml:"path" json:"path"`
	Port         int               `toml:"port,omitempty" json:"port,omitempty"`
	Type         framework.Type    `toml:"type" json:"type"`
	StartCommand string            `toml:"start_command,omitempty" json:"start_command,omitempty"`
	EnvVars      map[string]string `toml:"env_vars,omitempty" json:"env_vars,omitempty"`
}

// NewID returns a fresh project id.
func NewID() string { return uuid.NewString() }

// Validate checks the fields needed to launch the project.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return errors.Join(ErrInvalid, errors.New("id is required"))
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		return errors.Join(ErrInvalid, errors.New("id must be a uuid"))
	}
	if d.Path == "" {
		return errors.Join(ErrInvalid, errors.New("path is required"))
	}
	if d.Port < 0 || d.Port > 65535 {
		return errors.Join(ErrInvalid, errors.New("port out of range"))
	}
	return nil
}

// Command returns the start command, falling back to the type's default.
func (d Descriptor) Command() string {
	if d.StartCommand != "" {
		return d.StartCommand
	}
	return framework.DefaultCommand(d.Type)
}

type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// ProcessInfo describes one launched project process.
type ProcessInfo struct {
	ProjectID string    `json:"project_id"`
	PID       int       `json:"pid"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Port      int       `json:"port,omitempty"`
	Command   string    `json:"command"`
	Milestone Milestone `json:"milestone,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Live reports whether the process is still ours to stop.
func (p ProcessInfo) Live() bool {
	return p.Status == StatusStarting || p.Status == StatusRunning || p.Status == StatusStopping
}
