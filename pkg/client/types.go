package client

import "time"

// Service mirrors the service info returned by /services.
type Service struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Executable   string     `json:"executable"`
	Port         int        `json:"port,omitempty"`
	DependsOn    []string   `json:"depends_on,omitempty"`
	AutoStart    bool       `json:"auto_start"`
	AutoRestart  bool       `json:"auto_restart"`
	Status       string     `json:"status"`
	PID          int        `json:"pid,omitempty"`
	Ownership    string     `json:"ownership,omitempty"`
	RestartCount int        `json:"restart_count"`
	LastStarted  *time.Time `json:"last_started,omitempty"`
	LastStopped  *time.Time `json:"last_stopped,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Health is the result of an on-demand service health check.
type Health struct {
	Healthy   bool   `json:"healthy"`
	Message   string `json:"message"`
	LatencyMS int64  `json:"latency_ms"`
}

// Project is a stored project descriptor. Process is set while devstack
// tracks a process for it.
type Project struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	Path         string            `json:"path"`
	Port         int               `json:"port,omitempty"`
	Type         string            `json:"type,omitempty"`
	StartCommand string            `json:"start_command,omitempty"`
	EnvVars      map[string]string `json:"env_vars,omitempty"`
	Process      *ProcessInfo      `json:"process,omitempty"`
}

// ProcessInfo describes a project process.
type ProcessInfo struct {
	ProjectID string    `json:"project_id"`
	PID       int       `json:"pid"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Port      int       `json:"port,omitempty"`
	Command   string    `json:"command"`
	Milestone string    `json:"milestone,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// LogLine is one retained output line of a project.
type LogLine struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

// Detection is the answer of /detect.
type Detection struct {
	Path           string `json:"path"`
	Type           string `json:"type"`
	DefaultCommand string `json:"default_command"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
