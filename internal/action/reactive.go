package action

import (
	"fmt"

	"collision-server/internal/actor"
)

// Kind tags a reactive target with the way it is dispatched.
type Kind uint8

const (
	// KindAbilityTarget needs the hit actor and the attacking owner set
	// before it runs.
	KindAbilityTarget Kind = iota + 1
	// KindAbility runs on the emitter with no target.
	KindAbility
)

// Reactive is anything attachable to a CollisionAction.
type Reactive interface {
	Kind() Kind
}

// Ability is a self-contained reaction run on the emitting actor.
type Ability interface {
	Reactive
	Execute(self *actor.Actor) error
}

// TargetedAbility is an Ability that acts on another actor.
type TargetedAbility interface {
	Ability
	SetTargets(target, owner *actor.Actor)
}

// KindHandler dispatches one kind of reactive target.
type KindHandler struct {
	Name string
	// Accepts reports whether r can be dispatched by Run.
	Accepts func(r Reactive) bool
	Run     func(r Reactive, hit Hit) error
}

// Dispatcher is the kind -> handler table.
type Dispatcher struct {
	handlers map[Kind]KindHandler
}

// NewDispatcher returns a table with the built-in kinds registered.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: make(map[Kind]KindHandler)}
	d.Register(KindAbilityTarget, KindHandler{
		Name: "ability_target",
		Accepts: func(r Reactive) bool {
			_, ok := r.(TargetedAbility)
			return ok
		},
		Run: func(r Reactive, hit Hit) error {
			// hit.Actor is nil for colliders without an actor; targets that
			// need one return ErrNoTarget themselves.
			ta := r.(TargetedAbility)
			ta.SetTargets(hit.Actor, hit.Emitter.Owner())
			return ta.Execute(hit.Emitter)
		},
	})
	d.Register(KindAbility, KindHandler{
		Name: "ability",
		Accepts: func(r Reactive) bool {
			_, ok := r.(Ability)
			return ok
		},
		Run: func(r Reactive, hit Hit) error {
			return r.(Ability).Execute(hit.Emitter)
		},
	})
	return d
}

// Register adds or replaces the handler for kind.
func (d *Dispatcher) Register(kind Kind, h KindHandler) {
	d.handlers[kind] = h
}

// KindName returns the registered name of kind.
func (d *Dispatcher) KindName(kind Kind) string {
	if h, ok := d.handlers[kind]; ok {
		return h.Name
	}
	return fmt.Sprintf("kind(%d)", uint8(kind))
}

func (d *Dispatcher) check(r Reactive) error {
	if r == nil {
		return fmt.Errorf("%w: nil", ErrInvalidTarget)
	}
	h, ok := d.handlers[r.Kind()]
	if !ok {
		return fmt.Errorf("%w: unregistered kind %d", ErrInvalidTarget, r.Kind())
	}
	if h.Accepts != nil && !h.Accepts(r) {
		return fmt.Errorf("%w: %T does not implement %s", ErrInvalidTarget, r, h.Name)
	}
	return nil
}

func (d *Dispatcher) dispatch(r Reactive, hit Hit) error {
	if err := d.check(r); err != nil {
		return err
	}
	return d.handlers[r.Kind()].Run(r, hit)
}
