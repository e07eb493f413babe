// Package netsync carries collision reports between authorities and folds
// remote reports into the local tick.
package netsync

import "sync"

// CollisionEvent reports that the actor with ActorStateID hit the actor
// with HitStateID on a remote authority.
type CollisionEvent struct {
	ActorStateID int32 `msgpack:"a"`
	HitStateID   int32 `msgpack:"h"`
}

// Inbox buffers events delivered by transport goroutines until the tick
// drains them.
type Inbox struct {
	mu      sync.Mutex
	events  []CollisionEvent
	limit   int
	dropped int
}

// NewInbox creates an inbox holding at most limit undrained events; zero
// means unbounded.
func NewInbox(limit int) *Inbox {
	return &Inbox{limit: limit}
}

// Push appends events in arrival order. Events past the limit are dropped
// and counted.
func (in *Inbox) Push(events ...CollisionEvent) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, ev := range events {
		if in.limit > 0 && len(in.events) >= in.limit {
			in.dropped++
			continue
		}
		in.events = append(in.events, ev)
	}
}

// Drain appends all pending events to dst, empties the inbox and returns
// the extended slice along with the number of events dropped since the
// last drain.
func (in *Inbox) Drain(dst []CollisionEvent) ([]CollisionEvent, int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	dst = append(dst, in.events...)
	in.events = in.events[:0]
	dropped := in.dropped
	in.dropped = 0
	return dst, dropped
}

// Len returns the number of pending events.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.events)
}
