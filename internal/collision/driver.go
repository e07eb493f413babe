// Package collision runs the per-tick collision pass: ingest remote
// reports, query ray and volume emitters, dispatch actions and finalize
// contacts and destruction.
package collision

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"collision-server/internal/action"
	"collision-server/internal/actor"
	"collision-server/internal/contact"
	"collision-server/internal/ecs"
	"collision-server/internal/netsync"
	"collision-server/internal/spatial"
)

// DefaultBufferCapacity bounds the hits considered per emitter query.
const DefaultBufferCapacity = 16

var (
	ErrNilActor     = errors.New("collision: emitter has no actor")
	ErrRegistered   = errors.New("collision: emitter already registered")
	ErrUnregistered = errors.New("collision: emitter not registered")
)

// Phase is the driver's position within a tick.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseIngest
	PhaseQueryRaycastEmitters
	PhaseQueryVolumeEmitters
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseIngest:
		return "ingest"
	case PhaseQueryRaycastEmitters:
		return "query_raycast_emitters"
	case PhaseQueryVolumeEmitters:
		return "query_volume_emitters"
	case PhaseFinalize:
		return "finalize"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Destroyer applies deferred destruction requests.
type Destroyer interface {
	RequestDestroy(e ecs.Entity) bool
}

// Reporter publishes hits decided by authoritative emitters.
type Reporter interface {
	Report(source, target int32)
}

// Recorder is told about dispatches, destroy requests and unresolved
// network reports.
type Recorder interface {
	action.Observer
	DestroyRequested(emitter *actor.Actor)
	NetworkMisses(tick uint64, n int)
}

// Options configures a Driver. Zero values fall back to defaults.
type Options struct {
	BufferCapacity int
	Inbox          *netsync.Inbox
	Destroyer      Destroyer
	Reporter       Reporter
	Recorder       Recorder
	Dispatcher     *action.Dispatcher
	Logger         *slog.Logger
}

// TickStats summarizes one tick.
type TickStats struct {
	Tick            uint64
	Emitters        int
	LocalHits       int
	NetworkEvents   int
	NetworkDropped  int
	NetworkHits     int
	NetworkMisses   int
	Dispatches      int
	DestroyRequests int
	EndedContacts   int
}

// Driver owns the registered emitters and runs the collision pass.
type Driver struct {
	dir        *actor.Directory
	world      *spatial.World
	registry   *actor.Registry
	reconciler *netsync.Reconciler
	pipeline   *action.Pipeline
	inbox      *netsync.Inbox
	destroyer  Destroyer
	reporter   Reporter
	recorder   Recorder
	log        *slog.Logger

	emitters []*Emitter
	phase    Phase
	tick     uint64
	stats    TickStats

	volBuf   []*spatial.Collider
	rayBuf   []spatial.RayHit
	netBuf   []*actor.Actor
	events   []netsync.CollisionEvent
	destroys []*Emitter
}

// New creates a driver over dir's actors and physics world.
func New(dir *actor.Directory, opts Options) *Driver {
	capacity := opts.BufferCapacity
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	destroyer := opts.Destroyer
	if destroyer == nil {
		destroyer = dir.Store()
	}
	var obs action.Observer
	if opts.Recorder != nil {
		obs = opts.Recorder
	}
	return &Driver{
		dir:        dir,
		world:      dir.World(),
		registry:   actor.NewRegistry(),
		reconciler: netsync.NewReconciler(),
		pipeline:   action.NewPipeline(opts.Dispatcher, log, obs),
		inbox:      opts.Inbox,
		destroyer:  destroyer,
		reporter:   opts.Reporter,
		recorder:   opts.Recorder,
		log:        log,
		volBuf:     make([]*spatial.Collider, capacity),
		rayBuf:     make([]spatial.RayHit, capacity),
	}
}

// Phase returns the phase currently executing, PhaseIdle between ticks.
func (d *Driver) Phase() Phase { return d.phase }

// TickCount returns the number of completed ticks.
func (d *Driver) TickCount() uint64 { return d.tick }

// Dispatcher returns the kind table used to validate and run targets.
func (d *Driver) Dispatcher() *action.Dispatcher { return d.pipeline.Dispatcher() }

// Emitters returns the registered emitters in registration order.
func (d *Driver) Emitters() []*Emitter { return d.emitters }

// Register validates e and adds it after the already registered emitters.
// Invalid shapes or actions reject the emitter.
func (d *Driver) Register(e *Emitter) error {
	if e.Actor == nil {
		return ErrNilActor
	}
	if e.registered {
		return ErrRegistered
	}
	if err := e.Shape.Validate(); err != nil {
		return fmt.Errorf("collision: register %s: %w", e.Actor, err)
	}
	for _, a := range e.Actions {
		if err := a.Validate(d.Dispatcher()); err != nil {
			return fmt.Errorf("collision: register %s: %w", e.Actor, err)
		}
	}
	if e.IsRay() {
		e.once = contact.NewOnce()
	} else {
		e.tracker = contact.NewTracker()
		e.takeoff = true
	}
	e.registered = true
	d.emitters = append(d.emitters, e)
	for _, a := range e.Actions {
		d.attach(e, a)
	}
	return nil
}

// AddAction validates a and appends it to a registered emitter.
func (d *Driver) AddAction(e *Emitter, a *action.CollisionAction) error {
	if !e.registered {
		return ErrUnregistered
	}
	if err := a.Validate(d.Dispatcher()); err != nil {
		return fmt.Errorf("collision: add action to %s: %w", e.Actor, err)
	}
	e.Actions = append(e.Actions, a)
	d.attach(e, a)
	return nil
}

func (d *Driver) attach(e *Emitter, a *action.CollisionAction) {
	for _, r := range a.Targets {
		if at, ok := r.(action.Attacher); ok {
			if err := at.Attach(e.Actor); err != nil {
				d.log.Warn("attach target failed", "emitter", e.Actor.String(), "action", a.Name, "err", err)
			}
		}
	}
}

// Unregister removes e.
func (d *Driver) Unregister(e *Emitter) {
	if i := slices.Index(d.emitters, e); i >= 0 {
		d.emitters = slices.Delete(d.emitters, i, i+1)
	}
	e.registered = false
}

// Tick runs one full collision pass.
func (d *Driver) Tick() TickStats {
	d.stats = TickStats{Tick: d.tick}

	d.phase = PhaseIngest
	d.ingest()

	d.phase = PhaseQueryRaycastEmitters
	for _, e := range d.emitters {
		if e.IsRay() {
			d.queryRay(e)
		}
	}

	d.phase = PhaseQueryVolumeEmitters
	for _, e := range d.emitters {
		if !e.IsRay() {
			d.queryVolume(e)
		}
	}

	d.phase = PhaseFinalize
	d.finalize()

	d.phase = PhaseIdle
	d.tick++
	d.stats.Emitters = len(d.emitters)
	return d.stats
}

func (d *Driver) ingest() {
	d.dir.Sweep()
	d.world.Sync()

	d.emitters = slices.DeleteFunc(d.emitters, func(e *Emitter) bool {
		if e.Actor.Alive() {
			return false
		}
		e.registered = false
		return true
	})

	d.events = d.events[:0]
	if d.inbox != nil {
		var dropped int
		d.events, dropped = d.inbox.Drain(d.events)
		d.stats.NetworkDropped = dropped
		if dropped > 0 {
			d.log.Warn("network collision events dropped", "tick", d.tick, "dropped", dropped)
		}
	}
	d.stats.NetworkEvents = len(d.events)
	d.reconciler.Ingest(d.events)
	d.registry.Rebuild(d.dir)
}

// queryRay dispatches the ray's hits nearest first, then its network hits.
// Rays keep no contact state; a collider dispatches at most once per tick.
func (d *Driver) queryRay(e *Emitter) {
	n := d.world.Raycast(e.Shape.WorldRay(e.Actor.Pose()), spatial.AllLayers, d.rayBuf)
	var destroy bool
	for i := 0; i < n; i++ {
		c := d.rayBuf[i].Collider
		d.stats.LocalHits++
		if e.Actor.Owns(c) || !e.once.First(c) {
			continue
		}
		destroy = d.dispatch(e, c, d.dir.Lookup(c.Owner), false) || destroy
	}
	for _, a := range d.networkHits(e) {
		c := a.PrimaryCollider()
		if e.Actor.Owns(c) || !e.once.First(c) {
			continue
		}
		destroy = d.dispatch(e, c, a, true) || destroy
	}
	if destroy {
		d.requestDestroy(e)
	}
}

// queryVolume dispatches local overlaps in query order, then network hits
// in arrival order. Spawner colliders are ignored while the emitter is
// taking off; the first tick without one ends takeoff.
func (d *Driver) queryVolume(e *Emitter) {
	vol := e.Shape.World(e.Actor.Pose())
	n := d.world.OverlapVolume(vol, spatial.AllLayers, d.volBuf)
	selfHits := 0
	var destroy bool

	consider := func(c *spatial.Collider, a *actor.Actor, network bool) {
		if e.Actor.Owns(c) {
			return
		}
		if e.takeoff && e.Actor.IsSpawnerCollider(c) {
			selfHits++
			return
		}
		if !e.tracker.ShouldDispatch(c) {
			return
		}
		destroy = d.dispatch(e, c, a, network) || destroy
	}

	for i := 0; i < n; i++ {
		c := d.volBuf[i]
		d.stats.LocalHits++
		consider(c, d.dir.Lookup(c.Owner), false)
	}
	for _, a := range d.networkHits(e) {
		consider(a.PrimaryCollider(), a, true)
	}

	if selfHits == 0 {
		e.takeoff = false
	}
	if destroy {
		d.requestDestroy(e)
	}
}

// networkHits resolves the remote reports for e's actor. Actors without a
// live collider are dropped.
func (d *Driver) networkHits(e *Emitter) []*actor.Actor {
	if !d.reconciler.HasReports() {
		return nil
	}
	misses := d.reconciler.Misses()
	hits := d.reconciler.Resolve(d.netBuf[:0], e.Actor.StateID(), d.registry)
	d.stats.NetworkMisses += d.reconciler.Misses() - misses
	hits = slices.DeleteFunc(hits, func(a *actor.Actor) bool {
		return !a.PrimaryCollider().Alive()
	})
	d.netBuf = hits
	d.stats.NetworkHits += len(hits)
	return hits
}

// dispatch runs e's actions for one hit and reports whether any passing
// action asked for the emitter to be destroyed.
func (d *Driver) dispatch(e *Emitter, c *spatial.Collider, target *actor.Actor, network bool) bool {
	if !c.Alive() || (target != nil && !target.Alive()) {
		return false
	}
	if e.Debug {
		d.log.Info("collision hit", "tick", d.tick, "emitter", e.Actor.String(),
			"collider", c.String(), "target", target.String(), "network", network)
	}
	res := d.pipeline.EvaluateAll(e.Actions, action.Hit{
		Emitter:  e.Actor,
		Collider: c,
		Actor:    target,
		Network:  network,
	})
	d.stats.Dispatches += res.Dispatched
	if res.Passed > 0 && !network && target != nil && d.reporter != nil && e.Actor.Authoritative() {
		d.reporter.Report(e.Actor.StateID(), target.StateID())
	}
	return res.Destroy
}

// requestDestroy queues e's actor once per tick.
func (d *Driver) requestDestroy(e *Emitter) {
	if e.destroyTick == d.tick+1 {
		return
	}
	e.destroyTick = d.tick + 1
	d.destroys = append(d.destroys, e)
}

func (d *Driver) finalize() {
	for _, e := range d.emitters {
		if e.tracker != nil {
			d.stats.EndedContacts += e.tracker.Prune()
		}
		if e.once != nil {
			e.once.Next()
		}
	}
	for _, e := range d.destroys {
		if d.destroyer.RequestDestroy(e.Actor.Entity) {
			d.stats.DestroyRequests++
		}
		if d.recorder != nil {
			d.recorder.DestroyRequested(e.Actor)
		}
	}
	clear(d.destroys)
	d.destroys = d.destroys[:0]
	if d.recorder != nil && d.stats.NetworkMisses > 0 {
		d.recorder.NetworkMisses(d.tick, d.stats.NetworkMisses)
	}
	if d.stats.NetworkMisses > 0 {
		d.log.Debug("network hits not resolved", "tick", d.tick, "misses", d.stats.NetworkMisses)
	}
}
