package process

import (
	"errors"
	"fmt"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// KillTree terminates pid and every descendant. Dev servers are usually
// wrapped in a shell or package-manager launcher, so killing only the root
// would leave the real server holding its port. Children are killed before
// their parents. A pid that no longer exists is not an error.
func KillTree(pid int) error {
	if pid <= 0 {
		return nil
	}
	root, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, gopsproc.ErrorProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	descendants := collectDescendants(root, map[int32]bool{root.Pid: true})

	var errs []error
	if err := killGroup(pid); err != nil {
		errs = append(errs, err)
	}
	for i := len(descendants) - 1; i >= 0; i-- {
		if err := killOne(descendants[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := killOne(root); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// collectDescendants walks the tree breadth first; the result lists parents
// before children.
func collectDescendants(p *gopsproc.Process, seen map[int32]bool) []*gopsproc.Process {
	var out []*gopsproc.Process
	queue := []*gopsproc.Process{p}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := cur.Children()
		if err != nil {
			continue
		}
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

func killOne(p *gopsproc.Process) error {
	if !IsAlive(int(p.Pid)) {
		return nil
	}
	if err := p.Kill(); err != nil && IsAlive(int(p.Pid)) {
		return fmt.Errorf("kill %d: %w", p.Pid, err)
	}
	return nil
}

// IsAlive reports whether pid refers to a running, non-zombie process.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	if err != nil || !ok {
		return false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	if st, err := p.Status(); err == nil {
		for _, s := range st {
			if s == gopsproc.Zombie {
				return false
			}
		}
	}
	return true
}

// StartTime returns the creation time of pid, used to tell a recorded
// process apart from an unrelated one that reused its PID.
func StartTime(pid int) (time.Time, bool) {
	if pid <= 0 {
		return time.Time{}, false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return time.Time{}, false
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
