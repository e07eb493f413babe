package action

import (
	"fmt"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"collision-server/internal/actor"
)

// Script runs a tengo program on dispatch. The program sees the globals
// emitter_state, target_state and owner_state (0 when absent) and an
// engine map with set_speed(multiplier), destroy_target() and
// destroy_self().
type Script struct {
	Name string

	kind     Kind
	compiled *tengo.Compiled
	target   *actor.Actor
	owner    *actor.Actor
}

type global struct {
	name  string
	value any
}

// scriptGlobals are declared before compiling and set on every run.
var scriptGlobals = []global{
	{"emitter_state", 0},
	{"target_state", 0},
	{"owner_state", 0},
	{"engine", map[string]any{}},
}

func addGlobals(script *tengo.Script, globals []global) error {
	for _, g := range globals {
		if err := script.Add(g.name, g.value); err != nil {
			return fmt.Errorf("add global %s: %w", g.name, err)
		}
	}
	return nil
}

// NewScript compiles src. Scripts of KindAbility never receive a target.
func NewScript(name, src string, kind Kind) (*Script, error) {
	if kind != KindAbility && kind != KindAbilityTarget {
		return nil, fmt.Errorf("%w: script %q kind %d", ErrInvalidTarget, name, kind)
	}
	script := tengo.NewScript([]byte(src))
	if err := addGlobals(script, scriptGlobals); err != nil {
		return nil, fmt.Errorf("action: script %q: %w", name, err)
	}
	script.SetImports(stdlib.GetModuleMap("math", "text", "times"))

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("action: compile script %q: %w", name, err)
	}
	return &Script{Name: name, kind: kind, compiled: compiled}, nil
}

func (s *Script) Kind() Kind { return s.kind }

func (s *Script) SetTargets(target, owner *actor.Actor) {
	s.target, s.owner = target, owner
}

func stateOf(a *actor.Actor) int {
	if !a.Alive() {
		return 0
	}
	return int(a.StateID())
}

func (s *Script) Execute(self *actor.Actor) error {
	target := s.target
	if s.kind == KindAbility {
		target = nil
	}
	engine := &tengo.ImmutableMap{Value: map[string]tengo.Object{
		"set_speed": &tengo.UserFunction{Name: "set_speed", Value: func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 1 {
				return nil, tengo.ErrWrongNumArguments
			}
			m, ok := tengo.ToFloat64(args[0])
			if !ok {
				return nil, tengo.ErrInvalidArgumentType{Name: "multiplier", Expected: "float", Found: args[0].TypeName()}
			}
			if !target.Alive() {
				return tengo.FalseValue, nil
			}
			target.SetMovementMultiplier(m)
			return tengo.TrueValue, nil
		}},
		"destroy_target": &tengo.UserFunction{Name: "destroy_target", Value: func(...tengo.Object) (tengo.Object, error) {
			if !target.Alive() || !target.Despawn() {
				return tengo.FalseValue, nil
			}
			return tengo.TrueValue, nil
		}},
		"destroy_self": &tengo.UserFunction{Name: "destroy_self", Value: func(...tengo.Object) (tengo.Object, error) {
			if !self.Alive() || !self.Despawn() {
				return tengo.FalseValue, nil
			}
			return tengo.TrueValue, nil
		}},
	}}

	if err := s.compiled.Set("emitter_state", stateOf(self)); err != nil {
		return err
	}
	if err := s.compiled.Set("target_state", stateOf(target)); err != nil {
		return err
	}
	if err := s.compiled.Set("owner_state", stateOf(s.owner)); err != nil {
		return err
	}
	if err := s.compiled.Set("engine", engine); err != nil {
		return err
	}
	if err := s.compiled.Run(); err != nil {
		return fmt.Errorf("action: run script %q: %w", s.Name, err)
	}
	return nil
}
