package events

import "sync"

// Timeline keeps a most-recent-first list of events for display. Events already
// seen (same transaction and log index) and logs removed by a reorg are ignored.
type Timeline struct {
	mu     sync.Mutex
	limit  int
	events []Event
	seen   map[eventKey]struct{}
}

// NewTimeline seeds a timeline with history, which must already be most-recent-first.
// limit bounds the number of retained events; zero keeps everything.
func NewTimeline(history []Event, limit int) *Timeline {
	t := &Timeline{limit: limit, seen: make(map[eventKey]struct{})}
	for i := len(history) - 1; i >= 0; i-- {
		t.Add(history[i])
	}
	return t
}

// Add prepends ev and reports whether it was new.
func (t *Timeline) Add(ev Event) bool {
	if ev.Removed {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := ev.key()
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	t.events = append([]Event{ev}, t.events...)
	if t.limit > 0 && len(t.events) > t.limit {
		t.events = t.events[:t.limit]
	}
	return true
}

// Events returns a copy of the timeline, newest first.
func (t *Timeline) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}
