package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"
)

// ExitStatus describes how a spawned process ended.
type ExitStatus struct {
	Code     int
	Err      error
	ExitedAt time.Time
}

// Success reports a clean zero exit.
func (e ExitStatus) Success() bool { return e.Err == nil && e.Code == 0 }

// Handle is an owned OS process started by the Registry.
// Stdout and Stderr are nil unless the Spec asked for capture; the reader of
// the streams is responsible for closing them.
type Handle struct {
	ID        string
	PID       int
	StartedAt time.Time
	Stdout    io.ReadCloser
	Stderr    io.ReadCloser

	mu     sync.Mutex
	done   chan struct{}
	exited bool
	exit   ExitStatus
}

// NewHandle returns a live handle for pid. The Registry uses it for real
// processes; tests use it to fake spawned processes.
func NewHandle(id string, pid int) *Handle {
	return &Handle{ID: id, PID: pid, StartedAt: time.Now(), done: make(chan struct{})}
}

// Done is closed once the process has exited and was reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// MarkExited records the result of Wait. Only the first call has an effect.
func (h *Handle) MarkExited(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return
	}
	st := ExitStatus{Err: err, ExitedAt: time.Now()}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		st.Code = ee.ExitCode()
	} else if err != nil {
		st.Code = -1
	}
	h.exit = st
	h.exited = true
	close(h.done)
}

// Wait blocks until the process exits or timeout elapses.
func (h *Handle) Wait(timeout time.Duration) (ExitStatus, bool) {
	select {
	case <-h.done:
		return TryReap(h)
	case <-time.After(timeout):
		return ExitStatus{}, false
	}
}

// TryReap is a non-blocking check for process exit.
func TryReap(h *Handle) (ExitStatus, bool) {
	if h == nil {
		return ExitStatus{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit, h.exited
}

// Registry owns process handles keyed by logical ID (service or project ID).
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{handles: make(map[string]*Handle), log: log.With("component", "process")}
}

// Spawn starts spec and tracks the handle under id. A handle previously
// stored under the same id is replaced.
func (r *Registry) Spawn(id string, spec Spec) (*Handle, error) {
	cmd := spec.command()
	var outR, errR *os.File
	if spec.Capture {
		var outW, errW *os.File
		var err error
		if outR, outW, err = os.Pipe(); err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		if errR, errW, err = os.Pipe(); err != nil {
			closeFiles(outR, outW)
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		cmd.Stdout, cmd.Stderr = outW, errW
		// The child holds its own copies; the parent's write ends must be
		// closed so readers see EOF when the tree exits.
		defer closeFiles(outW, errW)
	}
	if err := cmd.Start(); err != nil {
		closeFiles(outR, errR)
		return nil, fmt.Errorf("spawn %s: %w", spec.Path, err)
	}
	h := NewHandle(id, cmd.Process.Pid)
	if spec.Capture {
		h.Stdout, h.Stderr = outR, errR
	}
	go func() { h.MarkExited(cmd.Wait()) }()

	r.Put(id, h)
	r.log.Debug("spawned", "id", id, "pid", h.PID, "path", spec.Path)
	return h, nil
}

// Get returns the handle tracked under id.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Put tracks h under id, replacing any previous handle.
func (r *Registry) Put(id string, h *Handle) {
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
}

// Take removes and returns the handle tracked under id.
func (r *Registry) Take(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	delete(r.handles, id)
	return h, ok
}

// Release forgets the handle tracked under id.
func (r *Registry) Release(id string) { r.Take(id) }

// IDs returns the tracked ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// KillTree terminates pid and all of its descendants.
func (r *Registry) KillTree(pid int) error {
	err := KillTree(pid)
	if err != nil {
		r.log.Warn("kill tree failed", "pid", pid, "error", err)
	}
	return err
}

// IsAlive reports whether pid refers to a live process.
func (r *Registry) IsAlive(pid int) bool { return IsAlive(pid) }

func closeFiles(fs ...*os.File) {
	for _, f := range fs {
		if f != nil {
			_ = f.Close()
		}
	}
}
