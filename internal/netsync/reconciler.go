package netsync

import (
	"collision-server/internal/actor"
)

// Resolver maps state ids to local actors.
type Resolver interface {
	Lookup(id int32) (*actor.Actor, bool)
}

// Reconciler groups one tick's remote reports by source state id.
type Reconciler struct {
	bySource map[int32][]int32
	sources  []int32
	misses   int
}

func NewReconciler() *Reconciler {
	return &Reconciler{bySource: make(map[int32][]int32)}
}

// Ingest replaces the previous tick's reports. Hit ids keep arrival order
// per source; duplicates are kept.
func (r *Reconciler) Ingest(events []CollisionEvent) {
	for _, id := range r.sources {
		r.bySource[id] = r.bySource[id][:0]
	}
	r.sources = r.sources[:0]
	r.misses = 0
	for _, ev := range events {
		hits, seen := r.bySource[ev.ActorStateID]
		if !seen || len(hits) == 0 {
			r.sources = append(r.sources, ev.ActorStateID)
		}
		r.bySource[ev.ActorStateID] = append(hits, ev.HitStateID)
	}
}

// HasReports reports whether any event arrived this tick.
func (r *Reconciler) HasReports() bool {
	return len(r.sources) > 0
}

// Sources returns the source ids with reports, in first-arrival order.
func (r *Reconciler) Sources() []int32 {
	return r.sources
}

// HitIDs returns the raw hit ids reported for source.
func (r *Reconciler) HitIDs(source int32) []int32 {
	return r.bySource[source]
}

// Resolve appends the actors hit by source to dst in arrival order. Ids
// that do not resolve are skipped; the actor may have been destroyed
// locally or not replicated yet.
func (r *Reconciler) Resolve(dst []*actor.Actor, source int32, reg Resolver) []*actor.Actor {
	if source == 0 {
		return dst
	}
	for _, id := range r.bySource[source] {
		a, ok := reg.Lookup(id)
		if !ok {
			r.misses++
			continue
		}
		dst = append(dst, a)
	}
	return dst
}

// Misses returns how many ids failed to resolve since the last Ingest.
func (r *Reconciler) Misses() int {
	return r.misses
}
