// Package portscan lists listening TCP sockets and the processes that own
// them.
package portscan

import (
	"context"
	"fmt"
	"sort"

	gopsnet "github.com/shirou/gopsutil/v4/net"
)

const StateListen = "LISTEN"

type Entry struct {
	Port  int    `json:"port"`
	PID   int    `json:"pid"`
	State string `json:"state"`
}

type Scanner interface {
	Scan(ctx context.Context) ([]Entry, error)
}

// System scans the host's TCP connection table.
type System struct{}

func (System) Scan(ctx context.Context) ([]Entry, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]Entry, 0, len(conns))
	for _, c := range conns {
		out = append(out, Entry{Port: int(c.Laddr.Port), PID: int(c.Pid), State: c.Status})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		return out[i].PID < out[j].PID
	})
	return out, nil
}

// Listeners indexes LISTEN entries with a known owner by port. The first
// owner seen for a port wins.
func Listeners(entries []Entry) map[int]int {
	m := make(map[int]int)
	for _, e := range entries {
		if e.State != StateListen || e.PID <= 0 || e.Port <= 0 {
			continue
		}
		if _, ok := m[e.Port]; !ok {
			m[e.Port] = e.PID
		}
	}
	return m
}

// Static returns a fixed table. Useful when the host scan is unavailable and
// in tests.
type Static []Entry

func (s Static) Scan(context.Context) ([]Entry, error) { return append([]Entry(nil), s...), nil }
