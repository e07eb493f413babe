// Package spatial is the physics world queried by the collision engine:
// colliders attached to entities, a broad-phase grid and bounded
// overlap/raycast queries.
package spatial

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"collision-server/internal/ecs"
	"collision-server/internal/geom"
)

// Layer is a physics layer index in [0, 31].
type Layer uint8

const MaxLayer Layer = 31

// LayerMask is a bit set of layers.
type LayerMask uint32

const AllLayers LayerMask = ^LayerMask(0)

// MaskOf builds a mask from layer indices.
func MaskOf(layers ...Layer) LayerMask {
	var m LayerMask
	for _, l := range layers {
		m |= 1 << (l & 31)
	}
	return m
}

// Has reports whether l is set in m.
func (m LayerMask) Has(l Layer) bool {
	return l <= MaxLayer && m&(1<<l) != 0
}

// Collider is a volume shape attached to an entity.
type Collider struct {
	ID    uint32
	Owner ecs.Entity
	Layer Layer
	Tag   string
	Shape geom.Shape

	volume  geom.Volume
	index   int32
	stamp   uint32
	synced  bool
	removed bool
}

// Volume returns the world-space shape resolved at the last Sync.
func (c *Collider) Volume() geom.Volume { return c.volume }

// Alive reports whether the collider is still part of the world.
func (c *Collider) Alive() bool { return c != nil && !c.removed }

func (c *Collider) String() string {
	return fmt.Sprintf("collider#%d(%s,%s)", c.ID, c.Shape.Kind, c.Tag)
}

// RayHit is one raycast result.
type RayHit struct {
	Collider *Collider
	Distance float64
	Point    mgl64.Vec3
}

// World holds every collider and answers queries against the poses
// captured by the last Sync.
type World struct {
	store     *ecs.Store
	grid      *Grid
	colliders []*Collider
	byOwner   map[ecs.Entity][]*Collider
	nextID    uint32
	stamp     uint32
	dirty     bool
	scratch   []int32
}

func NewWorld(store *ecs.Store, cellSize float64) *World {
	return &World{
		store:   store,
		grid:    NewGrid(cellSize),
		byOwner: make(map[ecs.Entity][]*Collider),
	}
}

// Add attaches a volume collider to owner.
func (w *World) Add(owner ecs.Entity, layer Layer, tag string, shape geom.Shape) (*Collider, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if !shape.IsVolume() {
		return nil, fmt.Errorf("%w: colliders must be volumes, got %s", geom.ErrInvalidShape, shape.Kind)
	}
	if layer > MaxLayer {
		return nil, fmt.Errorf("spatial: layer %d out of range", layer)
	}
	w.nextID++
	c := &Collider{ID: w.nextID, Owner: owner, Layer: layer, Tag: tag, Shape: shape}
	w.colliders = append(w.colliders, c)
	w.byOwner[owner] = append(w.byOwner[owner], c)
	w.dirty = true
	return c, nil
}

// Remove detaches c. It stops matching queries immediately.
func (w *World) Remove(c *Collider) {
	if !c.Alive() {
		return
	}
	c.removed = true
	w.dirty = true
	list := w.byOwner[c.Owner]
	if i := slices.Index(list, c); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	if len(list) == 0 {
		delete(w.byOwner, c.Owner)
	} else {
		w.byOwner[c.Owner] = list
	}
}

// RemoveOwner detaches every collider of owner.
func (w *World) RemoveOwner(owner ecs.Entity) {
	for _, c := range slices.Clone(w.byOwner[owner]) {
		w.Remove(c)
	}
}

// CollidersOf returns owner's colliders in registration order. The slice
// must not be modified.
func (w *World) CollidersOf(owner ecs.Entity) []*Collider {
	return w.byOwner[owner]
}

// Len returns the number of attached colliders.
func (w *World) Len() int {
	return len(w.colliders)
}

// Sync resolves every collider against its owner's current transform and
// rebuilds the broad phase. Colliders of dead owners are removed.
func (w *World) Sync() {
	for _, c := range w.colliders {
		if c.removed {
			continue
		}
		if !w.store.Alive(c.Owner) {
			w.Remove(c)
			continue
		}
		pose := geom.IdentityPose()
		if tr, ok := ecs.Get(w.store, c.Owner, ecs.Transform); ok {
			pose = tr.Pose
		}
		c.volume = c.Shape.World(pose)
		c.synced = true
	}
	if w.dirty {
		w.colliders = slices.DeleteFunc(w.colliders, func(c *Collider) bool { return c.removed })
		w.dirty = false
	}

	w.grid.Clear()
	for i, c := range w.colliders {
		c.index = int32(i)
		w.grid.InsertAABB(c.volume.Bounds(), int32(i))
	}
}

// candidates collects unique live collider indices from the grid in
// registration order.
func (w *World) candidates(b geom.AABB, mask LayerMask) []int32 {
	w.stamp++
	raw := w.grid.QueryBuf(b, w.scratch[:0])
	out := raw[:0]
	for _, i := range raw {
		if int(i) >= len(w.colliders) {
			continue
		}
		c := w.colliders[i]
		if c.stamp == w.stamp || c.removed || !c.synced || !mask.Has(c.Layer) {
			continue
		}
		c.stamp = w.stamp
		out = append(out, i)
	}
	slices.Sort(out)
	w.scratch = raw
	return out
}

// OverlapVolume writes colliders on mask layers that overlap v into buf
// and returns the count. The count saturates at len(buf); further
// overlaps are dropped. Results follow collider registration order.
func (w *World) OverlapVolume(v geom.Volume, mask LayerMask, buf []*Collider) int {
	if len(buf) == 0 {
		return 0
	}
	n := 0
	b := v.Bounds()
	for _, i := range w.candidates(b, mask) {
		c := w.colliders[i]
		if !b.Overlaps(c.volume.Bounds()) || !geom.Overlaps(v, c.volume) {
			continue
		}
		buf[n] = c
		n++
		if n == len(buf) {
			break
		}
	}
	return n
}

// Raycast writes the nearest colliders on mask layers hit by r into buf,
// ordered by distance, and returns the count. The count saturates at
// len(buf).
func (w *World) Raycast(r geom.RayCast, mask LayerMask, buf []RayHit) int {
	if len(buf) == 0 {
		return 0
	}
	n := 0
	for _, i := range w.candidates(r.Bounds(), mask) {
		c := w.colliders[i]
		d, ok := r.Intersect(c.volume)
		if !ok {
			continue
		}
		if n == len(buf) && d >= buf[n-1].Distance {
			continue
		}
		// Insert after equal distances so ties keep registration order.
		pos := n
		for pos > 0 && buf[pos-1].Distance > d {
			pos--
		}
		if n < len(buf) {
			n++
		}
		copy(buf[pos+1:n], buf[pos:n-1])
		buf[pos] = RayHit{Collider: c, Distance: d, Point: r.Point(d)}
	}
	return n
}
