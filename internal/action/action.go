// Package action filters collision hits and dispatches the reactive
// targets attached to an emitter.
package action

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"collision-server/internal/spatial"
)

var (
	ErrInvalidFilterMode = errors.New("action: invalid filter mode")
	ErrInvalidTarget     = errors.New("action: invalid target")
)

// FilterMode selects how FilterTags are applied.
type FilterMode uint8

const (
	IncludeOnly FilterMode = iota
	Exclude
)

func (m FilterMode) String() string {
	switch m {
	case IncludeOnly:
		return "include_only"
	case Exclude:
		return "exclude"
	}
	return fmt.Sprintf("filter_mode(%d)", uint8(m))
}

// ParseFilterMode maps a config name to a FilterMode.
func ParseFilterMode(s string) (FilterMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "include_only", "includeonly", "include":
		return IncludeOnly, nil
	case "exclude":
		return Exclude, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFilterMode, s)
}

// CollisionAction is one rule on an emitter: a filter plus the targets to
// run when a hit passes it.
type CollisionAction struct {
	Name                          string
	LayerMask                     spatial.LayerMask
	UseTagFilter                  bool
	FilterMode                    FilterMode
	FilterTags                    []string
	ExecuteOnCollisionWithSpawner bool
	DestroyAfterAction            bool
	Targets                       []Reactive
}

// Validate reports configuration errors. Actions are validated when they
// are attached to an emitter, not during a tick.
func (a *CollisionAction) Validate(d *Dispatcher) error {
	if a.UseTagFilter && a.FilterMode != IncludeOnly && a.FilterMode != Exclude {
		return fmt.Errorf("%w: %s on action %q", ErrInvalidFilterMode, a.FilterMode, a.Name)
	}
	for i, t := range a.Targets {
		if err := d.check(t); err != nil {
			return fmt.Errorf("action %q target %d: %w", a.Name, i, err)
		}
	}
	return nil
}

func (a *CollisionAction) tagAllowed(tag string) (bool, error) {
	if !a.UseTagFilter {
		return true, nil
	}
	listed := slices.Contains(a.FilterTags, tag)
	switch a.FilterMode {
	case IncludeOnly:
		return listed, nil
	case Exclude:
		return !listed, nil
	}
	return false, fmt.Errorf("%w: %s", ErrInvalidFilterMode, a.FilterMode)
}
