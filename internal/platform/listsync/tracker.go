package listsync

import "sync"

// Tracker remembers which list view is on screen. Switching to another view
// tells the caller to start that view from scratch.
type Tracker struct {
	mu     sync.Mutex
	active string
}

// Activate marks key as the active view and reports whether it replaced a
// different one (or none).
func (t *Tracker) Activate(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == key {
		return false
	}
	t.active = key
	return true
}

// Active returns the key of the active view.
func (t *Tracker) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
