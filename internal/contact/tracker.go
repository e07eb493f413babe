// Package contact remembers which colliders an emitter is already touching
// so reactions fire on entry rather than every tick.
package contact

import "collision-server/internal/spatial"

// Tracker is the contact set of one volume emitter. A collider enters the
// set the first tick it is dispatched and leaves it at the end of the first
// tick it is no longer observed.
type Tracker struct {
	seen map[*spatial.Collider]uint64
	tick uint64
}

func NewTracker() *Tracker {
	return &Tracker{seen: make(map[*spatial.Collider]uint64)}
}

// ShouldDispatch marks c as observed this tick and reports whether it is a
// new contact. It returns true at most once per contact.
func (t *Tracker) ShouldDispatch(c *spatial.Collider) bool {
	_, tracked := t.seen[c]
	t.seen[c] = t.tick
	return !tracked
}

// Observe keeps an existing contact alive without dispatching.
func (t *Tracker) Observe(c *spatial.Collider) {
	if _, tracked := t.seen[c]; tracked {
		t.seen[c] = t.tick
	}
}

// Contains reports whether c is in the contact set.
func (t *Tracker) Contains(c *spatial.Collider) bool {
	_, ok := t.seen[c]
	return ok
}

// Prune drops contacts not observed this tick and starts the next tick.
// It returns how many contacts ended.
func (t *Tracker) Prune() int {
	ended := 0
	for c, tick := range t.seen {
		if tick != t.tick {
			delete(t.seen, c)
			ended++
		}
	}
	t.tick++
	return ended
}

// Len returns the number of tracked contacts.
func (t *Tracker) Len() int { return len(t.seen) }

// Reset forgets every contact.
func (t *Tracker) Reset() {
	clear(t.seen)
}

// Once dedupes dispatches within a single tick for emitters that keep no
// contact state, such as raycasts.
type Once struct {
	seen map[*spatial.Collider]uint64
	tick uint64
}

func NewOnce() *Once {
	return &Once{seen: make(map[*spatial.Collider]uint64)}
}

// First reports whether c has not been dispatched yet this tick.
func (o *Once) First(c *spatial.Collider) bool {
	if tick, ok := o.seen[c]; ok && tick == o.tick {
		return false
	}
	o.seen[c] = o.tick
	return true
}

// Next starts a new tick.
func (o *Once) Next() {
	if len(o.seen) > 64 {
		clear(o.seen)
	}
	o.tick++
}
