package actor

import (
	"fmt"

	"collision-server/internal/ecs"
	"collision-server/internal/geom"
	"collision-server/internal/spatial"
)

// ColliderSpec describes a collider attached at spawn time.
type ColliderSpec struct {
	Layer spatial.Layer
	Tag   string
	Shape geom.Shape
}

// SpawnOptions configures a new actor.
type SpawnOptions struct {
	Name      string
	Pose      geom.Pose
	StateID   int32
	Spawner   *Actor
	Owner     *Actor
	Authority bool
	Report    bool
	Colliders []ColliderSpec
}

// StateEntry pairs a network state id with its actor.
type StateEntry struct {
	StateID int32
	Actor   *Actor
}

// Directory resolves entity handles to actors.
type Directory struct {
	store   *ecs.Store
	world   *spatial.World
	actors  map[ecs.Entity]*Actor
	order   []*Actor
	entries []StateEntry
}

func NewDirectory(store *ecs.Store, world *spatial.World) *Directory {
	return &Directory{
		store:  store,
		world:  world,
		actors: make(map[ecs.Entity]*Actor),
	}
}

// Store returns the backing entity store.
func (d *Directory) Store() *ecs.Store { return d.store }

// World returns the backing physics world.
func (d *Directory) World() *spatial.World { return d.world }

// Spawn creates an actor entity with its colliders.
func (d *Directory) Spawn(opts SpawnOptions) (*Actor, error) {
	e := d.store.Create(ecs.Transform, ecs.Links, ecs.Name, ecs.Movement)
	pose := opts.Pose
	if pose.Rotation.Len() == 0 {
		pose.Rotation = geom.IdentityPose().Rotation
	}
	ecs.Set(d.store, e, ecs.Transform, ecs.TransformData{Pose: pose})
	ecs.Set(d.store, e, ecs.Name, ecs.NameData{Name: opts.Name})
	ecs.Set(d.store, e, ecs.Movement, ecs.MovementData{ExternalMultiplier: 1})

	links := ecs.LinksData{Spawner: ecs.Null, Owner: ecs.Null}
	if opts.Spawner != nil {
		links.Spawner = opts.Spawner.Entity
	}
	switch {
	case opts.Owner != nil:
		links.Owner = opts.Owner.Entity
	case opts.Spawner != nil:
		links.Owner = opts.Spawner.links().Owner
		if links.Owner == ecs.Null {
			links.Owner = opts.Spawner.Entity
		}
	}
	ecs.Set(d.store, e, ecs.Links, links)

	if opts.StateID != 0 {
		ecs.Set(d.store, e, ecs.NetworkState, ecs.NetworkStateData{StateID: opts.StateID})
	}
	if opts.Authority {
		ecs.Set(d.store, e, ecs.Authority, ecs.AuthorityData{Report: opts.Report})
	}

	for _, cs := range opts.Colliders {
		if _, err := d.world.Add(e, cs.Layer, cs.Tag, cs.Shape); err != nil {
			d.world.RemoveOwner(e)
			d.store.RequestDestroy(e)
			d.store.Flush()
			return nil, fmt.Errorf("actor: spawn %q: %w", opts.Name, err)
		}
	}

	a := &Actor{Entity: e, Name: opts.Name, dir: d}
	d.actors[e] = a
	d.order = append(d.order, a)
	return a, nil
}

// Lookup returns the live actor for e, or nil.
func (d *Directory) Lookup(e ecs.Entity) *Actor {
	if e == ecs.Null || !d.store.Alive(e) {
		return nil
	}
	return d.actors[e]
}

// Despawn queues a's entity for destruction at the next store flush.
func (d *Directory) Despawn(a *Actor) bool {
	if a == nil {
		return false
	}
	return d.store.RequestDestroy(a.Entity)
}

// Sweep forgets actors whose entities were destroyed and detaches their
// colliders. It returns how many actors were dropped.
func (d *Directory) Sweep() int {
	kept := d.order[:0]
	dropped := 0
	for _, a := range d.order {
		if d.store.Alive(a.Entity) {
			kept = append(kept, a)
			continue
		}
		d.world.RemoveOwner(a.Entity)
		delete(d.actors, a.Entity)
		dropped++
	}
	clear(d.order[len(kept):])
	d.order = kept
	return dropped
}

// Len returns the number of known actors.
func (d *Directory) Len() int { return len(d.order) }

// AllActorsWithNetworkState lists live actors with a nonzero state id in
// spawn order. The returned slice is reused by the next call.
func (d *Directory) AllActorsWithNetworkState() []StateEntry {
	d.entries = d.entries[:0]
	for _, a := range d.order {
		if !a.Alive() {
			continue
		}
		if id := a.StateID(); id != 0 {
			d.entries = append(d.entries, StateEntry{StateID: id, Actor: a})
		}
	}
	return d.entries
}
