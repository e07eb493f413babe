package action

import (
	"errors"
	"log/slog"

	"collision-server/internal/actor"
	"collision-server/internal/spatial"
)

// ErrNoTarget is returned by targeted abilities that need a live hit actor
// when the hit collider has none.
var ErrNoTarget = errors.New("action: hit has no target actor")

// Hit is one candidate collision for an emitter.
type Hit struct {
	Emitter  *actor.Actor
	Collider *spatial.Collider
	// Actor owns Collider. Nil for colliders not attached to an actor.
	Actor   *actor.Actor
	Network bool
}

// Observer is told about every dispatched target.
type Observer interface {
	Dispatched(a *CollisionAction, kind string, hit Hit, err error)
}

// Result summarizes the actions run for one hit.
type Result struct {
	Passed     int
	Dispatched int
	Destroy    bool
}

// Pipeline applies action filters and dispatches targets.
type Pipeline struct {
	dispatcher *Dispatcher
	log        *slog.Logger
	observer   Observer
}

func NewPipeline(d *Dispatcher, log *slog.Logger, obs Observer) *Pipeline {
	if d == nil {
		d = NewDispatcher()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{dispatcher: d, log: log, observer: obs}
}

// Dispatcher returns the kind table used for dispatch and validation.
func (p *Pipeline) Dispatcher() *Dispatcher { return p.dispatcher }

// Evaluate runs one action against hit. Filters apply in order: layer
// mask, tag filter, spawner exclusion. It reports whether the hit passed
// them; target errors are logged and do not stop later targets.
func (p *Pipeline) Evaluate(a *CollisionAction, hit Hit) (bool, int, error) {
	if !a.LayerMask.Has(hit.Collider.Layer) {
		return false, 0, nil
	}
	ok, err := a.tagAllowed(hit.Collider.Tag)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return false, 0, nil
	}
	if !a.ExecuteOnCollisionWithSpawner && hit.Emitter.IsSpawnerCollider(hit.Collider) {
		return false, 0, nil
	}

	dispatched := 0
	for _, r := range a.Targets {
		err := p.dispatcher.dispatch(r, hit)
		if p.observer != nil && r != nil {
			p.observer.Dispatched(a, p.dispatcher.KindName(r.Kind()), hit, err)
		}
		switch {
		case err == nil:
			dispatched++
		case errors.Is(err, ErrNoTarget):
			p.log.Debug("targeted ability skipped", "action", a.Name, "collider", hit.Collider.ID)
		default:
			p.log.Warn("reactive target failed", "action", a.Name, "emitter", hit.Emitter.String(), "err", err)
		}
	}
	return true, dispatched, nil
}

// EvaluateAll runs actions in order against hit.
func (p *Pipeline) EvaluateAll(actions []*CollisionAction, hit Hit) Result {
	var res Result
	for _, a := range actions {
		passed, n, err := p.Evaluate(a, hit)
		if err != nil {
			p.log.Error("collision action aborted", "action", a.Name, "err", err)
			continue
		}
		if !passed {
			continue
		}
		res.Passed++
		res.Dispatched += n
		if a.DestroyAfterAction {
			res.Destroy = true
		}
	}
	return res
}
