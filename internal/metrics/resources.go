package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource reading for one supervised process.
type Usage struct {
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

var (
	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of supervised processes.",
		}, []string{"id"},
	)
	memoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_mb",
			Help:      "Resident memory in MB of supervised processes.",
		}, []string{"id"},
	)
)

var resourceCollectors = []prometheus.Collector{cpuPercent, memoryMB}

// Sample reads CPU and memory for every id->pid pair. Processes that vanish
// between listing and reading are skipped. Results are sorted by id.
func Sample(pids map[string]int) []Usage {
	now := time.Now()
	out := make([]Usage, 0, len(pids))
	for id, pid := range pids {
		u, err := sampleOne(id, pid, now)
		if err != nil {
			continue
		}
		out = append(out, u)
		if regOK.Load() {
			cpuPercent.WithLabelValues(id).Set(u.CPUPercent)
			memoryMB.WithLabelValues(id).Set(u.MemoryMB)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sampleOne(id string, pid int, at time.Time) (Usage, error) {
	if pid <= 0 {
		return Usage{}, fmt.Errorf("no pid for %s", id)
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, err
	}
	u := Usage{ID: id, PID: pid, Timestamp: at}
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return Usage{}, err
	}
	u.MemoryMB = float64(mem.RSS) / 1024 / 1024
	if n, err := p.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}
