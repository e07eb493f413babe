// Package ecs wraps a donburi world as the entity store used by the
// collision engine: typed get/set/has plus deferred destruction.
package ecs

import (
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

// Entity is an opaque entity handle. Handles of destroyed entities are
// never reused for a live entity with the same version.
type Entity = donburi.Entity

// Null is the zero handle.
var Null = donburi.Null

// Store owns the entity world and the pending destroy queue.
type Store struct {
	world   donburi.World
	pending []Entity
	queued  map[Entity]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		world:  donburi.NewWorld(),
		queued: make(map[Entity]struct{}),
	}
}

// Create allocates an entity carrying the given component types.
func (s *Store) Create(components ...donburi.IComponentType) Entity {
	return s.world.Create(components...)
}

// Alive reports whether e refers to a live entity.
func (s *Store) Alive(e Entity) bool {
	if s == nil || e == Null {
		return false
	}
	return s.world.Valid(e)
}

// Len returns the number of live entities.
func (s *Store) Len() int {
	return s.world.Len()
}

// RequestDestroy queues e for removal at the next Flush. Repeat requests
// for the same entity are ignored; it reports whether e was newly queued.
func (s *Store) RequestDestroy(e Entity) bool {
	if !s.Alive(e) {
		return false
	}
	if _, ok := s.queued[e]; ok {
		return false
	}
	s.queued[e] = struct{}{}
	s.pending = append(s.pending, e)
	return true
}

// PendingDestroy reports whether e is queued for removal.
func (s *Store) PendingDestroy(e Entity) bool {
	_, ok := s.queued[e]
	return ok
}

// Flush removes every queued entity and returns how many were removed.
func (s *Store) Flush() int {
	n := 0
	for _, e := range s.pending {
		if s.world.Valid(e) {
			s.world.Remove(e)
			n++
		}
		delete(s.queued, e)
	}
	s.pending = s.pending[:0]
	return n
}

// Get returns a copy of the component value on e.
func Get[T any](s *Store, e Entity, ct *donburi.ComponentType[T]) (T, bool) {
	var zero T
	if !s.Alive(e) {
		return zero, false
	}
	entry := s.world.Entry(e)
	if !entry.HasComponent(ct) {
		return zero, false
	}
	return *ct.Get(entry), true
}

// Set stores v on e, adding the component when it is missing.
func Set[T any](s *Store, e Entity, ct *donburi.ComponentType[T], v T) bool {
	if !s.Alive(e) {
		return false
	}
	entry := s.world.Entry(e)
	if !entry.HasComponent(ct) {
		donburi.Add(entry, ct, &v)
		return true
	}
	ct.SetValue(entry, v)
	return true
}

// Has reports whether e carries the component.
func Has[T any](s *Store, e Entity, ct *donburi.ComponentType[T]) bool {
	if !s.Alive(e) {
		return false
	}
	return s.world.Entry(e).HasComponent(ct)
}

// Each calls fn for every live entity carrying the component.
func Each[T any](s *Store, ct *donburi.ComponentType[T], fn func(Entity, *T)) {
	donburi.NewQuery(filter.Contains(ct)).Each(s.world, func(entry *donburi.Entry) {
		fn(entry.Entity(), ct.Get(entry))
	})
}
