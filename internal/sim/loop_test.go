package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"collision-server/internal/action"
	"collision-server/internal/actor"
	"collision-server/internal/collision"
	"collision-server/internal/ecs"
	"collision-server/internal/geom"
	"collision-server/internal/netsync"
	"collision-server/internal/spatial"
)

type recordingBroadcaster struct {
	ticks  []uint64
	events []netsync.CollisionEvent
}

func (r *recordingBroadcaster) Broadcast(tick uint64, events []netsync.CollisionEvent) {
	r.ticks = append(r.ticks, tick)
	r.events = append(r.events, events...)
}

type fixture struct {
	store  *ecs.Store
	dir    *actor.Directory
	driver *collision.Driver
	out    *recordingBroadcaster
	loop   *Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ecs.NewStore()
	dir := actor.NewDirectory(store, spatial.NewWorld(store, 4))
	outbox := &netsync.Outbox{}
	driver := collision.New(dir, collision.Options{Reporter: outbox})
	out := &recordingBroadcaster{}
	return &fixture{
		store:  store,
		dir:    dir,
		driver: driver,
		out:    out,
		loop: NewLoop(driver, Options{
			Store:       store,
			Outbox:      outbox,
			Broadcaster: out,
			TickRate:    1000,
		}),
	}
}

func pose(x float64) geom.Pose {
	return geom.Pose{Position: mgl64.Vec3{x, 0, 0}, Rotation: mgl64.QuatIdent()}
}

func sphere(r float64) []actor.ColliderSpec {
	return []actor.ColliderSpec{{Shape: geom.Sphere(mgl64.Vec3{}, r)}}
}

func TestStepDestroysAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	bullet, err := f.dir.Spawn(actor.SpawnOptions{Name: "bullet", StateID: 10, Authority: true, Report: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.dir.Spawn(actor.SpawnOptions{Name: "crate", StateID: 20, Pose: pose(0.5), Colliders: sphere(0.5)}); err != nil {
		t.Fatal(err)
	}
	hit := &action.CollisionAction{Name: "hit", LayerMask: spatial.AllLayers, DestroyAfterAction: true}
	if err := f.driver.Register(&collision.Emitter{Actor: bullet, Shape: geom.Sphere(mgl64.Vec3{}, 1), Actions: []*action.CollisionAction{hit}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	stats := f.loop.Step()
	if stats.DestroyRequests != 1 {
		t.Errorf("DestroyRequests = %d, want 1", stats.DestroyRequests)
	}
	if bullet.Alive() {
		t.Error("bullet should be destroyed after the step's flush")
	}
	if len(f.out.events) != 1 || f.out.events[0] != (netsync.CollisionEvent{ActorStateID: 10, HitStateID: 20}) {
		t.Errorf("broadcast events = %v", f.out.events)
	}
	if _, destroyed := f.loop.LastStats(); destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", destroyed)
	}

	// Next tick sweeps the emitter and broadcasts nothing.
	stats = f.loop.Step()
	if stats.Emitters != 0 {
		t.Errorf("Emitters = %d after destroy, want 0", stats.Emitters)
	}
	if len(f.out.ticks) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(f.out.ticks))
	}
}

func TestSubmitRunsBeforeTick(t *testing.T) {
	f := newFixture(t)
	var spawned *actor.Actor
	ok := f.loop.Submit(func() {
		a, err := f.dir.Spawn(actor.SpawnOptions{Name: "late", StateID: 3})
		if err != nil {
			t.Errorf("Spawn: %v", err)
			return
		}
		spawned = a
	})
	if !ok {
		t.Fatal("Submit rejected")
	}
	if spawned != nil {
		t.Fatal("command ran before Step")
	}
	f.loop.Step()
	if !spawned.Alive() {
		t.Error("command did not run during Step")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ticks := make(chan uint64, 1024)
	f.loop.onTick = func(s collision.TickStats) {
		select {
		case ticks <- s.Tick:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never ticked")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSpawnEffectLifetime(t *testing.T) {
	f := newFixture(t)
	effects := NewEffects(f.dir, 2)
	f.loop.effects = effects

	bolt, err := f.dir.Spawn(actor.SpawnOptions{Name: "bolt"})
	if err != nil {
		t.Fatal(err)
	}
	dummy, err := f.dir.Spawn(actor.SpawnOptions{Name: "dummy", Pose: pose(0.5), Colliders: sphere(0.5)})
	if err != nil {
		t.Fatal(err)
	}
	spark := &action.SpawnEffect{
		Settings: action.SpawnSettings{Prefab: "spark", Offset: mgl64.Vec3{0, 1, 0}},
		Spawner:  effects,
	}
	hit := &action.CollisionAction{Name: "spark", LayerMask: spatial.AllLayers, Targets: []action.Reactive{spark}}
	if err := f.driver.Register(&collision.Emitter{Actor: bolt, Shape: geom.Sphere(mgl64.Vec3{}, 1), Actions: []*action.CollisionAction{hit}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	f.loop.Step()
	if effects.Spawned() != 1 || effects.Live() != 1 {
		t.Fatalf("spawned %d live %d, want 1/1", effects.Spawned(), effects.Live())
	}
	if got := effects.live[0].actor.Pose().Position; !got.ApproxEqual(mgl64.Vec3{0.5, 1, 0}) {
		t.Errorf("effect position = %v", got)
	}
	if effects.live[0].actor.Spawner() != dummy {
		t.Error("effect spawner should be the hit actor")
	}

	// Contact persists so no new spark; the first expires after two steps.
	f.loop.Step()
	f.loop.Step()
	if effects.Spawned() != 1 {
		t.Errorf("spawned = %d, want 1", effects.Spawned())
	}
	if effects.Live() != 0 {
		t.Errorf("live = %d after lifetime, want 0", effects.Live())
	}
}
