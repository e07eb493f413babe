package action

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"collision-server/internal/actor"
)

// SpawnSettings describes an effect created on a hit.
type SpawnSettings struct {
	Prefab string
	Offset mgl64.Vec3
}

// Spawner creates effects on behalf of reactive targets.
type Spawner interface {
	Spawn(settings SpawnSettings, target, owner *actor.Actor) error
}

// Attacher is implemented by targets that run when their action is
// attached to an emitter.
type Attacher interface {
	Attach(self *actor.Actor) error
}

// SpawnEffect spawns Settings at the hit actor.
type SpawnEffect struct {
	Settings SpawnSettings
	Spawner  Spawner

	target, owner *actor.Actor
}

func (*SpawnEffect) Kind() Kind { return KindAbilityTarget }

func (s *SpawnEffect) SetTargets(target, owner *actor.Actor) {
	s.target, s.owner = target, owner
}

func (s *SpawnEffect) Execute(*actor.Actor) error {
	if s.Spawner == nil {
		return fmt.Errorf("spawn effect %q: no spawner", s.Settings.Prefab)
	}
	return s.Spawner.Spawn(s.Settings, s.target, s.owner)
}

// ModifyMovement overrides the hit actor's external speed multiplier.
type ModifyMovement struct {
	Multiplier float64

	target *actor.Actor
}

func (*ModifyMovement) Kind() Kind { return KindAbilityTarget }

func (m *ModifyMovement) SetTargets(target, _ *actor.Actor) {
	m.target = target
}

func (m *ModifyMovement) Execute(*actor.Actor) error {
	if !m.target.Alive() {
		return ErrNoTarget
	}
	m.target.SetMovementMultiplier(m.Multiplier)
	return nil
}

// ExecuteOnSpawner runs targeted abilities against the emitter's spawner.
type ExecuteOnSpawner struct {
	Abilities       []TargetedAbility
	ExecuteOnAttach bool
}

func (*ExecuteOnSpawner) Kind() Kind { return KindAbility }

func (e *ExecuteOnSpawner) Execute(self *actor.Actor) error {
	sp := self.Spawner()
	if sp == nil {
		return nil
	}
	var errs []error
	for _, a := range e.Abilities {
		a.SetTargets(sp, self.Owner())
		if err := a.Execute(self); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *ExecuteOnSpawner) Attach(self *actor.Actor) error {
	if !e.ExecuteOnAttach {
		return nil
	}
	return e.Execute(self)
}

// Func adapts a function to an Ability.
type Func func(self *actor.Actor) error

func (Func) Kind() Kind { return KindAbility }

func (f Func) Execute(self *actor.Actor) error { return f(self) }
