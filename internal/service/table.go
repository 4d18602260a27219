package service

import "sync"

// Table is the published status of every service. Readers never wait on a
// supervisor operation in progress.
type Table struct {
	mu    sync.RWMutex
	order []string
	rows  map[string]Info
}

func newTable() *Table { return &Table{rows: make(map[string]Info)} }

func (t *Table) publish(order []string, rows map[string]Info) {
	t.mu.Lock()
	t.order = order
	t.rows = rows
	t.mu.Unlock()
}

func (t *Table) Get(id string) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	in, ok := t.rows[id]
	return in, ok
}

// List returns rows in dependency order.
func (t *Table) List() []Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Info, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	return out
}
