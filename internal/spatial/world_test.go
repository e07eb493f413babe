package spatial

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"collision-server/internal/ecs"
	"collision-server/internal/geom"
)

func spawnAt(t *testing.T, s *ecs.Store, w *World, pos mgl64.Vec3, layer Layer, radius float64) *Collider {
	t.Helper()
	e := s.Create(ecs.Transform)
	ecs.Set(s, e, ecs.Transform, ecs.TransformData{Pose: geom.Pose{Position: pos, Rotation: mgl64.QuatIdent()}})
	c, err := w.Add(e, layer, "", geom.Sphere(mgl64.Vec3{}, radius))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return c
}

func TestGridInsertAndQuery(t *testing.T) {
	g := NewGrid(4)
	g.InsertAABB(geom.AABB{Min: mgl64.Vec3{1, 0, 1}, Max: mgl64.Vec3{2, 0, 2}}, 0)

	got := g.QueryBuf(geom.AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{3, 0, 3}}, nil)
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("expected to find ref 0, got %v", got)
	}
	got = g.QueryBuf(geom.AABB{Min: mgl64.Vec3{100, 0, 100}, Max: mgl64.Vec3{101, 0, 101}}, nil)
	if len(got) != 0 {
		t.Errorf("far query should be empty, got %v", got)
	}
}

func TestGridClear(t *testing.T) {
	g := NewGrid(4)
	g.InsertAABB(geom.AABB{Min: mgl64.Vec3{-10, 0, -10}, Max: mgl64.Vec3{-9, 0, -9}}, 3)
	g.Clear()

	got := g.QueryBuf(geom.AABB{Min: mgl64.Vec3{-12, 0, -12}, Max: mgl64.Vec3{0, 0, 0}}, nil)
	if len(got) != 0 {
		t.Errorf("expected 0 results after clear, got %d", len(got))
	}
}

func TestGridOversizeAlwaysReturned(t *testing.T) {
	g := NewGrid(1)
	g.InsertAABB(geom.AABB{Min: mgl64.Vec3{-1000, 0, -1000}, Max: mgl64.Vec3{1000, 0, 1000}}, 9)

	got := g.QueryBuf(geom.AABB{Min: mgl64.Vec3{500, 0, 500}, Max: mgl64.Vec3{501, 0, 501}}, nil)
	if len(got) != 1 || got[0] != 9 {
		t.Errorf("oversize entry should be returned, got %v", got)
	}
}

func TestOverlapVolumeFiltersLayers(t *testing.T) {
	s := ecs.NewStore()
	w := NewWorld(s, 4)
	a := spawnAt(t, s, w, mgl64.Vec3{1, 0, 0}, 2, 0.5)
	spawnAt(t, s, w, mgl64.Vec3{-1, 0, 0}, 5, 0.5)
	w.Sync()

	buf := make([]*Collider, 8)
	n := w.OverlapVolume(geom.SphereAt(mgl64.Vec3{}, 1), MaskOf(2), buf)
	if n != 1 || buf[0] != a {
		t.Fatalf("expected only layer-2 collider, got %d", n)
	}
	if n := w.OverlapVolume(geom.SphereAt(mgl64.Vec3{}, 1), AllLayers, buf); n != 2 {
		t.Errorf("expected 2 overlaps with all layers, got %d", n)
	}
}

func TestOverlapVolumeSaturatesAtCapacity(t *testing.T) {
	s := ecs.NewStore()
	w := NewWorld(s, 4)
	var want []*Collider
	for i := 0; i < 6; i++ {
		want = append(want, spawnAt(t, s, w, mgl64.Vec3{float64(i) * 0.1, 0, 0}, 0, 0.5))
	}
	w.Sync()

	buf := make([]*Collider, 4)
	n := w.OverlapVolume(geom.SphereAt(mgl64.Vec3{}, 2), AllLayers, buf)
	if n != 4 {
		t.Fatalf("count = %d, want capacity 4", n)
	}
	for i := 0; i < n; i++ {
		if buf[i] != want[i] {
			t.Errorf("buf[%d] = %v, want %v (registration order)", i, buf[i], want[i])
		}
	}
}

func TestSyncFollowsTransformAndDropsDeadOwners(t *testing.T) {
	s := ecs.NewStore()
	w := NewWorld(s, 4)
	c := spawnAt(t, s, w, mgl64.Vec3{50, 0, 50}, 0, 0.5)
	w.Sync()

	buf := make([]*Collider, 4)
	probe := geom.SphereAt(mgl64.Vec3{}, 1)
	if n := w.OverlapVolume(probe, AllLayers, buf); n != 0 {
		t.Fatalf("collider should start far away, got %d overlaps", n)
	}

	ecs.Set(s, c.Owner, ecs.Transform, ecs.TransformData{Pose: geom.IdentityPose()})
	w.Sync()
	if n := w.OverlapVolume(probe, AllLayers, buf); n != 1 {
		t.Fatalf("collider should follow its owner, got %d overlaps", n)
	}

	s.RequestDestroy(c.Owner)
	s.Flush()
	w.Sync()
	if c.Alive() {
		t.Error("collider of destroyed owner should be removed")
	}
	if n := w.OverlapVolume(probe, AllLayers, buf); n != 0 {
		t.Errorf("removed collider should not match, got %d", n)
	}
	if len(w.CollidersOf(c.Owner)) != 0 {
		t.Error("owner index should be empty")
	}
}

func TestRaycastNearestFirst(t *testing.T) {
	s := ecs.NewStore()
	w := NewWorld(s, 4)
	far := spawnAt(t, s, w, mgl64.Vec3{0, 0, 10}, 0, 0.5)
	near := spawnAt(t, s, w, mgl64.Vec3{0, 0, 5}, 0, 0.5)
	mid := spawnAt(t, s, w, mgl64.Vec3{0, 0, 7}, 0, 0.5)
	w.Sync()

	ray := geom.RayCast{Origin: mgl64.Vec3{}, Direction: mgl64.Vec3{0, 0, 1}, MaxDistance: 20}
	buf := make([]RayHit, 2)
	n := w.Raycast(ray, AllLayers, buf)
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	if buf[0].Collider != near || buf[1].Collider != mid {
		t.Errorf("order = %v, %v; want near, mid", buf[0].Collider, buf[1].Collider)
	}
	if buf[0].Distance != 4.5 {
		t.Errorf("distance = %g, want 4.5", buf[0].Distance)
	}
	_ = far
}

func TestRaycastLongDistance(t *testing.T) {
	s := ecs.NewStore()
	w := NewWorld(s, 4)
	target := spawnAt(t, s, w, mgl64.Vec3{5, 0, 0}, 0, 1)
	spawnAt(t, s, w, mgl64.Vec3{-5, 0, 0}, 0, 1)
	w.Sync()

	for _, dist := range []float64{100, 1e10, 1e300, math.MaxFloat64} {
		ray := geom.RayCast{Origin: mgl64.Vec3{}, Direction: mgl64.Vec3{1, 0, 0}, MaxDistance: dist}
		buf := make([]RayHit, 4)
		n := w.Raycast(ray, AllLayers, buf)
		if n != 1 || buf[0].Collider != target {
			t.Errorf("max distance %g: hits = %d, want the sphere at x=5", dist, n)
		}
	}
}

func TestGridHugeBoxesStayQueryable(t *testing.T) {
	g := NewGrid(4)
	g.InsertAABB(geom.AABB{Min: mgl64.Vec3{1, 0, 1}, Max: mgl64.Vec3{2, 0, 2}}, 1)
	g.InsertAABB(geom.AABB{Min: mgl64.Vec3{-1e300, 0, -1e300}, Max: mgl64.Vec3{1e300, 0, 1e300}}, 2)

	got := g.QueryBuf(geom.AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1e20, 0, 3}}, nil)
	var saw1, saw2 bool
	for _, ref := range got {
		saw1 = saw1 || ref == 1
		saw2 = saw2 || ref == 2
	}
	if !saw1 || !saw2 {
		t.Errorf("query over a clamped span = %v, want refs 1 and 2", got)
	}
}

func TestAddRejectsInvalidShapes(t *testing.T) {
	s := ecs.NewStore()
	w := NewWorld(s, 4)
	e := s.Create(ecs.Transform)

	if _, err := w.Add(e, 0, "", geom.Ray(mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, 1)); err == nil {
		t.Error("ray colliders should be rejected")
	}
	if _, err := w.Add(e, 0, "", geom.Sphere(mgl64.Vec3{}, math.NaN())); err == nil {
		t.Error("NaN radius should be rejected")
	}
	if _, err := w.Add(e, 0, "", geom.Shape{Kind: 99}); err == nil {
		t.Error("unknown shape kind should be rejected")
	}
	if _, err := w.Add(e, 40, "", geom.Sphere(mgl64.Vec3{}, 1)); err == nil {
		t.Error("layer out of range should be rejected")
	}
}
