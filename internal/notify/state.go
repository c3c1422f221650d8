// Package notify holds the notification inbox shared by every page: the
// unread list, the badge count and the poller keeping them current.
package notify

import (
	"sync"
	"time"

	"github.com/fleetdesk/fleetdesk/internal/backend"
)

// Item is one notification.
type Item struct {
	ID        string
	Message   string
	Link      string
	Read      bool
	Role      string
	CreatedAt time.Time
}

// ItemFromRecord maps a backend notification record.
func ItemFromRecord(rec backend.Record) Item {
	item := Item{
		ID:      rec.Text("id"),
		Message: rec.Text("message"),
		Link:    rec.Text("link"),
		Role:    rec.Text("role"),
	}
	if v, ok := rec.Value("read"); ok {
		item.Read, _ = v.(bool)
	}
	if ts, ok := rec.Date("createdAt"); ok {
		item.CreatedAt = ts
	}
	return item
}

// State is an immutable inbox snapshot. Every mutator returns a new State
// and leaves the receiver untouched.
type State struct {
	items   []Item
	unread  int
	loading bool
}

// Items returns a copy of the inbox items.
func (s State) Items() []Item {
	return append([]Item(nil), s.items...)
}

// Unread is the badge count.
func (s State) Unread() int { return s.unread }

// Loading reports whether the list is being fetched.
func (s State) Loading() bool { return s.loading }

// WithItems replaces the item list.
func (s State) WithItems(items []Item) State {
	s.items = append([]Item(nil), items...)
	return s
}

// WithUnread replaces the badge count.
func (s State) WithUnread(n int) State {
	if n < 0 {
		n = 0
	}
	s.unread = n
	return s
}

// WithLoading sets the loading flag.
func (s State) WithLoading(loading bool) State {
	s.loading = loading
	return s
}

// MarkRead flags one item as read, decrementing the count if it was unread.
func (s State) MarkRead(id string) State {
	items := make([]Item, len(s.items))
	copy(items, s.items)
	for i := range items {
		if items[i].ID == id && !items[i].Read {
			items[i].Read = true
			s.unread--
		}
	}
	s.items = items
	return s.WithUnread(s.unread)
}

// MarkAllRead flags every item as read and clears the count.
func (s State) MarkAllRead() State {
	items := make([]Item, len(s.items))
	for i, item := range s.items {
		item.Read = true
		items[i] = item
	}
	s.items = items
	s.unread = 0
	return s
}

// Remove drops one item, decrementing the count if it was unread.
func (s State) Remove(id string) State {
	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		if item.ID == id {
			if !item.Read {
				s.unread--
			}
			continue
		}
		items = append(items, item)
	}
	s.items = items
	return s.WithUnread(s.unread)
}

// Container owns the current inbox state.
type Container struct {
	mu    sync.RWMutex
	state State
}

// NewContainer returns an empty inbox.
func NewContainer() *Container {
	return &Container{}
}

// State returns the current snapshot.
func (c *Container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Update replaces the state with fn's result and returns it.
func (c *Container) Update(fn func(State) State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = fn(c.state)
	return c.state
}
