// Package actor tracks the game actors that own colliders, their weak
// spawner/owner links and the per-tick state id registry.
package actor

import (
	"fmt"
	"slices"

	"collision-server/internal/ecs"
	"collision-server/internal/geom"
	"collision-server/internal/spatial"
)

// Actor is an entity that owns colliders and may emit collision checks.
// Spawner and Owner are stored as entity handles and resolved through the
// directory on every access, so a despawned spawner reads as nil.
type Actor struct {
	Entity ecs.Entity
	Name   string

	dir *Directory

	own      []*spatial.Collider
	ownReady bool

	spawnerColliders []*spatial.Collider
	spawnerReady     bool
}

func (a *Actor) String() string {
	if a == nil {
		return "<nil actor>"
	}
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("actor#%d", a.Entity.Id())
}

// Alive reports whether the actor's entity still exists.
func (a *Actor) Alive() bool {
	return a != nil && a.dir.store.Alive(a.Entity)
}

// StateID returns the network state id, or 0 for purely local actors.
func (a *Actor) StateID() int32 {
	ns, ok := ecs.Get(a.dir.store, a.Entity, ecs.NetworkState)
	if !ok {
		return 0
	}
	return ns.StateID
}

// Pose returns the actor's current transform.
func (a *Actor) Pose() geom.Pose {
	if tr, ok := ecs.Get(a.dir.store, a.Entity, ecs.Transform); ok {
		return tr.Pose
	}
	return geom.IdentityPose()
}

// SetPose updates the actor's transform.
func (a *Actor) SetPose(p geom.Pose) {
	ecs.Set(a.dir.store, a.Entity, ecs.Transform, ecs.TransformData{Pose: p})
}

// Authoritative reports whether hits of this actor are reported to peers.
func (a *Actor) Authoritative() bool {
	auth, ok := ecs.Get(a.dir.store, a.Entity, ecs.Authority)
	return ok && auth.Report
}

func (a *Actor) links() ecs.LinksData {
	l, _ := ecs.Get(a.dir.store, a.Entity, ecs.Links)
	return l
}

// Spawner returns the live actor that spawned a, or nil.
func (a *Actor) Spawner() *Actor {
	return a.dir.Lookup(a.links().Spawner)
}

// Owner returns the live actor credited with a's actions, or nil.
func (a *Actor) Owner() *Actor {
	return a.dir.Lookup(a.links().Owner)
}

// OwnColliders returns the colliders attached to a. The set is captured
// on first use and kept for the actor's lifetime.
func (a *Actor) OwnColliders() []*spatial.Collider {
	if !a.ownReady {
		a.own = slices.Clone(a.dir.world.CollidersOf(a.Entity))
		a.ownReady = true
	}
	return a.own
}

// PrimaryCollider is the collider that stands in for a when it is hit
// through a network report. Nil when a has no colliders.
func (a *Actor) PrimaryCollider() *spatial.Collider {
	own := a.OwnColliders()
	if len(own) == 0 {
		return nil
	}
	return own[0]
}

// Owns reports whether c is one of a's own colliders.
func (a *Actor) Owns(c *spatial.Collider) bool {
	return slices.Contains(a.OwnColliders(), c)
}

// SpawnerColliders returns the colliders of a's spawner, captured on first
// use. Empty when a has no spawner.
func (a *Actor) SpawnerColliders() []*spatial.Collider {
	if !a.spawnerReady {
		if sp := a.Spawner(); sp != nil {
			a.spawnerColliders = slices.Clone(sp.OwnColliders())
		}
		a.spawnerReady = true
	}
	return a.spawnerColliders
}

// IsSpawnerCollider reports whether c belongs to a's spawner.
func (a *Actor) IsSpawnerCollider(c *spatial.Collider) bool {
	return slices.Contains(a.SpawnerColliders(), c)
}

// AddCollider attaches another collider and refreshes the cached set.
func (a *Actor) AddCollider(layer spatial.Layer, tag string, shape geom.Shape) (*spatial.Collider, error) {
	c, err := a.dir.world.Add(a.Entity, layer, tag, shape)
	if err != nil {
		return nil, err
	}
	a.ownReady = false
	return c, nil
}

// MovementMultiplier returns the external speed multiplier, 1 by default.
func (a *Actor) MovementMultiplier() float64 {
	m, ok := ecs.Get(a.dir.store, a.Entity, ecs.Movement)
	if !ok {
		return 1
	}
	return m.ExternalMultiplier
}

// SetMovementMultiplier overrides the external speed multiplier.
func (a *Actor) SetMovementMultiplier(m float64) bool {
	return ecs.Set(a.dir.store, a.Entity, ecs.Movement, ecs.MovementData{ExternalMultiplier: m})
}

// Despawn queues the actor for destruction at the next store flush.
func (a *Actor) Despawn() bool {
	return a.dir.Despawn(a)
}
