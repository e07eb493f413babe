package main

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"collision-server/internal/action"
	"collision-server/internal/actor"
	"collision-server/internal/auth"
	"collision-server/internal/collision"
	"collision-server/internal/geom"
	"collision-server/internal/logger"
	"collision-server/internal/preset"
	"collision-server/internal/sim"
	"collision-server/internal/spatial"
)

const (
	layerStatic spatial.Layer = 0
	layerUnits  spatial.Layer = 1

	fireEvery  = 30 // ticks between bolts
	boltStep   = 0.25
	boltRange  = 40.0
	dummySwing = 3.0
	perkTick   = 600 // laser overcharge unlocks
)

// defaultBolt is used when the preset directory has no bolt_hit entry.
var defaultBolt = preset.Settings{
	Name:               "bolt_hit",
	Layers:             []int{int(layerUnits)},
	UseTagFilter:       true,
	FilterMode:         "exclude",
	FilterTags:         []string{"Shield"},
	DestroyAfterAction: true,
}

// firingRange is a small demo scene: a turret fires bolts at a swinging
// dummy behind a shield, and sweeps a laser across the lane.
type firingRange struct {
	dir     *actor.Directory
	driver  *collision.Driver
	presets *preset.Library
	effects *sim.Effects

	turret *actor.Actor
	dummy  *actor.Actor
	laser  *collision.Emitter
	bolts  []*actor.Actor
	nextID int32
}

func newFiringRange(dir *actor.Directory, driver *collision.Driver, presets *preset.Library, effects *sim.Effects) (*firingRange, error) {
	r := &firingRange{dir: dir, driver: driver, presets: presets, effects: effects, nextID: 100}

	var err error
	r.turret, err = dir.Spawn(actor.SpawnOptions{
		Name:      "turret",
		StateID:   1,
		Authority: true,
		Report:    true,
		Colliders: []actor.ColliderSpec{{
			Layer: layerStatic,
			Tag:   "Turret",
			Shape: geom.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent()),
		}},
	})
	if err != nil {
		return nil, err
	}
	r.dummy, err = dir.Spawn(actor.SpawnOptions{
		Name:      "dummy",
		StateID:   2,
		Pose:      geom.Pose{Position: mgl64.Vec3{20, 0, 0}, Rotation: mgl64.QuatIdent()},
		Colliders: []actor.ColliderSpec{{Layer: layerUnits, Tag: "Enemy", Shape: geom.Capsule(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 2, 0}, 0.6)}},
	})
	if err != nil {
		return nil, err
	}
	_, err = dir.Spawn(actor.SpawnOptions{
		Name:      "shield",
		StateID:   3,
		Pose:      geom.Pose{Position: mgl64.Vec3{10, 0, 1}, Rotation: mgl64.QuatIdent()},
		Colliders: []actor.ColliderSpec{{Layer: layerUnits, Tag: "Shield", Shape: geom.Sphere(mgl64.Vec3{}, 1.5)}},
	})
	if err != nil {
		return nil, err
	}

	if err := r.attachLaser(); err != nil {
		return nil, err
	}
	return r, nil
}

// attachLaser gives the turret a ray emitter. A "laser" preset, when
// present, supplies the filter and any script.
func (r *firingRange) attachLaser() error {
	slow := &action.ModifyMovement{Multiplier: 0.5}
	a, err := r.presets.Action("laser", slow)
	if errors.Is(err, preset.ErrUnknownPreset) {
		a = &action.CollisionAction{
			Name:         "laser",
			LayerMask:    spatial.MaskOf(layerUnits),
			UseTagFilter: true,
			FilterMode:   action.IncludeOnly,
			FilterTags:   []string{"Enemy"},
			Targets:      []action.Reactive{slow},
		}
	} else if err != nil {
		return err
	}
	r.laser = &collision.Emitter{
		Actor:   r.turret,
		Shape:   geom.Ray(mgl64.Vec3{0, 1, 0}, mgl64.Vec3{1, 0, 0}, boltRange),
		Actions: []*action.CollisionAction{a},
	}
	return r.driver.Register(r.laser)
}

// overcharge appends a stronger slow to the running laser.
func (r *firingRange) overcharge() error {
	return r.driver.AddAction(r.laser, &action.CollisionAction{
		Name:         "overcharge",
		LayerMask:    spatial.MaskOf(layerUnits),
		UseTagFilter: true,
		FilterMode:   action.IncludeOnly,
		FilterTags:   []string{"Enemy"},
		Targets:      []action.Reactive{&action.ModifyMovement{Multiplier: 0.25}},
	})
}

func (r *firingRange) boltSettings() (preset.Settings, geom.Shape) {
	s, err := r.presets.Get("bolt_hit")
	if err != nil {
		s = defaultBolt
	}
	shape := geom.Sphere(mgl64.Vec3{}, 0.4)
	if s.Shape != nil {
		if sh, err := s.Shape.Shape(); err == nil && sh.IsVolume() {
			shape = sh
		}
	}
	return s, shape
}

func (r *firingRange) fire() error {
	s, shape := r.boltSettings()
	spark := &action.SpawnEffect{
		Settings: action.SpawnSettings{Prefab: "spark", Offset: mgl64.Vec3{0, 1, 0}},
		Spawner:  r.effects,
	}
	hit, err := s.Action(spark)
	if err != nil {
		return err
	}
	// Hitting anything restores the turret's own speed.
	recoil := &action.CollisionAction{
		Name:                          "recoil",
		LayerMask:                     spatial.AllLayers,
		ExecuteOnCollisionWithSpawner: true,
		Targets: []action.Reactive{&action.ExecuteOnSpawner{
			Abilities: []action.TargetedAbility{&action.ModifyMovement{Multiplier: 1}},
		}},
	}

	bolt, err := r.dir.Spawn(actor.SpawnOptions{
		Name:    fmt.Sprintf("bolt-%d", r.nextID),
		StateID: r.nextID,
		Pose:    r.turret.Pose(),
		Spawner: r.turret,
	})
	if err != nil {
		return err
	}
	r.nextID++
	if err := r.driver.Register(&collision.Emitter{
		Actor:   bolt,
		Shape:   shape,
		Actions: []*action.CollisionAction{hit, recoil},
	}); err != nil {
		bolt.Despawn()
		return err
	}
	r.bolts = append(r.bolts, bolt)
	return nil
}

// step advances the scene after tick.
func (r *firingRange) step(tick uint64) {
	if !r.turret.Alive() {
		return
	}
	if r.dummy.Alive() {
		p := r.dummy.Pose()
		p.Position[2] = dummySwing * math.Sin(float64(tick)/40)
		r.dummy.SetPose(p)
	}

	kept := r.bolts[:0]
	for _, b := range r.bolts {
		if !b.Alive() {
			continue
		}
		p := b.Pose()
		p.Position[0] += boltStep
		if p.Position.X() > boltRange {
			b.Despawn()
			continue
		}
		b.SetPose(p)
		kept = append(kept, b)
	}
	clear(r.bolts[len(kept):])
	r.bolts = kept

	if tick == perkTick {
		if err := r.overcharge(); err != nil {
			logf("overcharge failed: %v", err)
		}
	}
	if tick%fireEvery == 0 {
		if err := r.fire(); err != nil {
			logf("fire failed: %v", err)
		}
	}
}

func runRegister(a *auth.Auth, arg string) int {
	name, secret, ok := strings.Cut(arg, ":")
	if !ok {
		logf("register-peer expects name:secret")
		return 2
	}
	id, token, err := a.Register(name, secret)
	if err != nil {
		logf("register peer %q: %v", name, err)
		return 1
	}
	fmt.Printf("peer %q registered with id %d\ntoken: %s\n", name, id, token)
	return 0
}

func logf(format string, args ...any) {
	logger.L().Warn(fmt.Sprintf(format, args...))
}
