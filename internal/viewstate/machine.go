// Package viewstate tracks the load lifecycle of a data view:
// idle -> loading -> success | error. Results of superseded or closed loads
// are discarded.
package viewstate

import (
	"sync"
	"time"

	"github.com/fleetdesk/fleetdesk/internal/backend"
)

// Phase is the lifecycle phase of a view.
type Phase int

const (
	Idle Phase = iota
	Loading
	Success
	Error
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// Ticket identifies one load. Only the newest ticket may resolve.
type Ticket struct {
	gen uint64
}

// Snapshot is a read-only copy of a machine's state. Records is the fetched
// source array and must not be mutated by callers.
type Snapshot struct {
	Phase    Phase
	Records  []backend.Record
	Message  string
	LoadedAt time.Time
	Closed   bool
}

// Machine is the state of one view.
type Machine struct {
	mu       sync.Mutex
	phase    Phase
	prior    Phase
	gen      uint64
	records  []backend.Record
	message  string
	loadedAt time.Time
	touched  time.Time
	closed   bool
	now      func() time.Time
}

// New returns an idle machine.
func New() *Machine {
	return newMachine(time.Now)
}

func newMachine(now func() time.Time) *Machine {
	return &Machine{now: now, touched: now()}
}

// Begin enters Loading and returns the ticket for the new load. Any load
// still in flight is superseded. ok is false once the machine is closed.
func (m *Machine) Begin() (Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Ticket{}, false
	}
	m.gen++
	if m.phase != Loading {
		m.prior = m.phase
	}
	m.phase = Loading
	m.touched = m.now()
	return Ticket{gen: m.gen}, true
}

// Resolve applies a result if t is still the current load. The source array
// is replaced wholesale on success and kept on error.
func (m *Machine) Resolve(t Ticket, res backend.Result) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || t.gen != m.gen || m.phase != Loading {
		return false
	}
	if res.Success {
		m.phase = Success
		m.records = res.Data
		if m.records == nil {
			m.records = []backend.Record{}
		}
		m.message = ""
		m.loadedAt = m.now()
	} else {
		m.phase = Error
		m.message = res.Message
	}
	m.touched = m.now()
	return true
}

// Abandon drops the load t without applying a result, returning the machine
// to the phase it had before Begin. It is a no-op once t is superseded.
func (m *Machine) Abandon(t Ticket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || t.gen != m.gen || m.phase != Loading {
		return false
	}
	m.phase = m.prior
	m.touched = m.now()
	return true
}

// MarkStale sends a settled machine back to Idle so the next read reloads.
// The last records stay until then. Loading machines are left alone.
func (m *Machine) MarkStale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || (m.phase != Success && m.phase != Error) {
		return false
	}
	m.phase = Idle
	return true
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = m.now()
	return Snapshot{
		Phase:    m.phase,
		Records:  m.records,
		Message:  m.message,
		LoadedAt: m.loadedAt,
		Closed:   m.closed,
	}
}

// Phase reports the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Close discards the source array. Later resolves are ignored.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = nil
}

func (m *Machine) idleSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touched
}
