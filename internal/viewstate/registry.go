package viewstate

import (
	"context"
	"sync"
	"time"
)

type key struct {
	scope string
	view  string
}

// Registry owns one machine per (scope, view). A scope is typically a
// session id, so every browser session owns its views exclusively.
type Registry struct {
	mu       sync.Mutex
	machines map[key]*Machine
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry builds a registry evicting machines untouched for ttl.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Registry{machines: make(map[key]*Machine), ttl: ttl, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (r *Registry) WithNow(now func() time.Time) *Registry {
	if now != nil {
		r.now = now
	}
	return r
}

// Get returns the machine for scope and view, creating an idle one.
func (r *Registry) Get(scope, view string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{scope: scope, view: view}
	if m, ok := r.machines[k]; ok {
		return m
	}
	m := newMachine(r.now)
	r.machines[k] = m
	return m
}

// Close closes and forgets the machine for scope and view.
func (r *Registry) Close(scope, view string) {
	r.mu.Lock()
	m, ok := r.machines[key{scope: scope, view: view}]
	delete(r.machines, key{scope: scope, view: view})
	r.mu.Unlock()
	if ok {
		m.Close()
	}
}

// Len reports the number of live machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// Invalidate marks every settled machine stale and returns how many.
func (r *Registry) Invalidate() int {
	r.mu.Lock()
	machines := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		machines = append(machines, m)
	}
	r.mu.Unlock()
	n := 0
	for _, m := range machines {
		if m.MarkStale() {
			n++
		}
	}
	return n
}

// Sweep closes machines idle longer than the ttl and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var stale []*Machine
	r.mu.Lock()
	for k, m := range r.machines {
		if m.idleSince().Before(cutoff) {
			stale = append(stale, m)
			delete(r.machines, k)
		}
	}
	r.mu.Unlock()
	for _, m := range stale {
		m.Close()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
