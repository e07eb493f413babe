package sim

import (
	"fmt"
	"slices"

	"collision-server/internal/action"
	"collision-server/internal/actor"
	"collision-server/internal/geom"
)

// DefaultEffectLifetime is how many ticks a spawned effect lives.
const DefaultEffectLifetime = 30

type liveEffect struct {
	actor     *actor.Actor
	remaining int
}

// Effects spawns short-lived effect actors for SpawnEffect targets and
// despawns them when their lifetime runs out. It runs on the loop goroutine.
type Effects struct {
	dir      *actor.Directory
	lifetime int
	live     []liveEffect
	spawned  int
}

func NewEffects(dir *actor.Directory, lifetime int) *Effects {
	if lifetime <= 0 {
		lifetime = DefaultEffectLifetime
	}
	return &Effects{dir: dir, lifetime: lifetime}
}

// Spawn places settings.Prefab at the target offset by settings.Offset.
// The effect is owned by owner and spawned by target.
func (e *Effects) Spawn(settings action.SpawnSettings, target, owner *actor.Actor) error {
	if !target.Alive() {
		return fmt.Errorf("spawn %q: %w", settings.Prefab, action.ErrNoTarget)
	}
	p := target.Pose()
	a, err := e.dir.Spawn(actor.SpawnOptions{
		Name:    settings.Prefab,
		Pose:    geom.Pose{Position: p.Position.Add(settings.Offset), Rotation: p.Rotation},
		Spawner: target,
		Owner:   owner,
	})
	if err != nil {
		return err
	}
	e.live = append(e.live, liveEffect{actor: a, remaining: e.lifetime})
	e.spawned++
	return nil
}

// Step ages live effects and despawns expired ones.
func (e *Effects) Step() {
	e.live = slices.DeleteFunc(e.live, func(l liveEffect) bool {
		return !l.actor.Alive()
	})
	for i := range e.live {
		e.live[i].remaining--
		if e.live[i].remaining <= 0 {
			e.live[i].actor.Despawn()
		}
	}
}

// Live returns the number of effects not yet expired.
func (e *Effects) Live() int { return len(e.live) }

// Spawned returns the total number of effects created.
func (e *Effects) Spawned() int { return e.spawned }
