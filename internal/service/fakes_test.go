package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loykin/devstack/internal/health"
	"github.com/loykin/devstack/internal/process"
)

type fakeSpawner struct {
	mu      sync.Mutex
	next    int
	handles map[string]*process.Handle
	alive   map[int]bool
	fail    map[string]error
	spawned []string
	killed  []int
	specs   map[string]process.Spec
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		handles: map[string]*process.Handle{},
		alive:   map[int]bool{},
		fail:    map[string]error{},
		specs:   map[string]process.Spec{},
	}
}

func (f *fakeSpawner) Spawn(id string, spec process.Spec) (*process.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	f.next++
	h := process.NewHandle(id, 1000+f.next)
	f.handles[id] = h
	f.alive[h.PID] = true
	f.spawned = append(f.spawned, id)
	f.specs[id] = spec
	return h, nil
}

func (f *fakeSpawner) Release(id string) {
	f.mu.Lock()
	delete(f.handles, id)
	f.mu.Unlock()
}

func (f *fakeSpawner) KillTree(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	f.alive[pid] = false
	for _, h := range f.handles {
		if h.PID == pid {
			h.MarkExited(errors.New("signal: killed"))
		}
	}
	return nil
}

func (f *fakeSpawner) IsAlive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

// crash makes the process of id exit on its own.
func (f *fakeSpawner) crash(id string) {
	f.mu.Lock()
	h := f.handles[id]
	if h != nil {
		f.alive[h.PID] = false
	}
	f.mu.Unlock()
	if h != nil {
		h.MarkExited(errors.New("exit status 1"))
	}
}

func (f *fakeSpawner) setAlive(pid int, v bool) {
	f.mu.Lock()
	f.alive[pid] = v
	f.mu.Unlock()
}

func (f *fakeSpawner) spawnedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spawned...)
}

func (f *fakeSpawner) killedPIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.killed...)
}

// scriptProber answers from a list, repeating the last answer.
type scriptProber struct {
	mu      sync.Mutex
	answers []bool
	calls   int
}

func (p *scriptProber) Check(_ context.Context, _ health.Config, _ int) health.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok := true
	if len(p.answers) > 0 {
		i := min(p.calls, len(p.answers)-1)
		ok = p.answers[i]
	}
	p.calls++
	if ok {
		return health.Result{Healthy: true, StatusCode: 200}
	}
	return health.Result{StatusCode: 503}
}

func (p *scriptProber) set(answers ...bool) {
	p.mu.Lock()
	p.answers, p.calls = answers, 0
	p.mu.Unlock()
}

func (p *scriptProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
