package geom

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func quatY(deg float64) mgl64.Quat {
	return mgl64.QuatRotate(mgl64.DegToRad(deg), mgl64.Vec3{0, 1, 0})
}

func TestSphereOverlap(t *testing.T) {
	a := SphereAt(mgl64.Vec3{0, 0, 0}, 1)

	if !Overlaps(a, SphereAt(mgl64.Vec3{1.5, 0, 0}, 1)) {
		t.Error("spheres should overlap")
	}
	if !Overlaps(a, SphereAt(mgl64.Vec3{2, 0, 0}, 1)) {
		t.Error("touching spheres should overlap")
	}
	if Overlaps(a, SphereAt(mgl64.Vec3{2.5, 0, 0}, 1)) {
		t.Error("spheres should not overlap")
	}
}

func TestSphereCapsuleOverlap(t *testing.T) {
	c := CapsuleAt(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 4, 0}, 0.5)

	if !Overlaps(SphereAt(mgl64.Vec3{1, 2, 0}, 0.6), c) {
		t.Error("sphere beside capsule middle should overlap")
	}
	if Overlaps(SphereAt(mgl64.Vec3{0, 5.2, 0}, 0.5), c) {
		t.Error("sphere above capsule cap should not overlap")
	}
	if !Overlaps(c, SphereAt(mgl64.Vec3{0, 4.9, 0}, 0.5)) {
		t.Error("argument order should not matter")
	}
}

func TestSphereBoxOverlap(t *testing.T) {
	box := BoxAt(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent())

	if !Overlaps(SphereAt(mgl64.Vec3{1.5, 0, 0}, 0.6), box) {
		t.Error("sphere near face should overlap")
	}
	if Overlaps(SphereAt(mgl64.Vec3{1.5, 1.5, 0}, 0.6), box) {
		t.Error("sphere near edge should not overlap (distance ~0.707)")
	}

	// Rotated 45 degrees the corner reaches sqrt(2) along X.
	rotated := BoxAt(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, quatY(45))
	if !Overlaps(SphereAt(mgl64.Vec3{1.8, 0, 0}, 0.5), rotated) {
		t.Error("sphere should touch rotated corner")
	}
}

func TestCapsuleCapsuleOverlap(t *testing.T) {
	a := CapsuleAt(mgl64.Vec3{-2, 0, 0}, mgl64.Vec3{2, 0, 0}, 0.5)
	crossing := CapsuleAt(mgl64.Vec3{0, 0.8, -2}, mgl64.Vec3{0, 0.8, 2}, 0.5)
	if !Overlaps(a, crossing) {
		t.Error("crossing capsules 0.8 apart with radii 0.5 should overlap")
	}
	parallel := CapsuleAt(mgl64.Vec3{-2, 1.5, 0}, mgl64.Vec3{2, 1.5, 0}, 0.5)
	if Overlaps(a, parallel) {
		t.Error("parallel capsules 1.5 apart should not overlap")
	}
}

func TestCapsuleBoxOverlap(t *testing.T) {
	box := BoxAt(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent())

	through := CapsuleAt(mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{5, 0, 0}, 0.1)
	if !Overlaps(through, box) {
		t.Error("capsule through box should overlap")
	}
	above := CapsuleAt(mgl64.Vec3{-5, 1.4, 0}, mgl64.Vec3{5, 1.4, 0}, 0.5)
	if !Overlaps(above, box) {
		t.Error("capsule 0.4 above box with radius 0.5 should overlap")
	}
	far := CapsuleAt(mgl64.Vec3{-5, 2, 0}, mgl64.Vec3{5, 2, 0}, 0.5)
	if Overlaps(far, box) {
		t.Error("capsule 1.0 above box with radius 0.5 should not overlap")
	}
}

func TestBoxBoxOverlap(t *testing.T) {
	a := BoxAt(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent())

	if !Overlaps(a, BoxAt(mgl64.Vec3{1.9, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent())) {
		t.Error("boxes should overlap")
	}
	if Overlaps(a, BoxAt(mgl64.Vec3{2.1, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent())) {
		t.Error("boxes should be separated on X")
	}
	// A rotated box's corner reaches 1+sqrt(2) from the center.
	if !Overlaps(a, BoxAt(mgl64.Vec3{2.3, 0, 0}, mgl64.Vec3{1, 1, 1}, quatY(45))) {
		t.Error("rotated box corner should reach the other box")
	}
}

func TestRayIntersect(t *testing.T) {
	ray := RayCast{Origin: mgl64.Vec3{-10, 0, 0}, Direction: mgl64.Vec3{1, 0, 0}, MaxDistance: 20}

	tests := []struct {
		name string
		vol  Volume
		want float64
		hit  bool
	}{
		{"sphere", SphereAt(mgl64.Vec3{0, 0, 0}, 1), 9, true},
		{"sphere off axis", SphereAt(mgl64.Vec3{0, 2, 0}, 1), 0, false},
		{"box", BoxAt(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent()), 9, true},
		{"capsule side", CapsuleAt(mgl64.Vec3{0, -3, 0}, mgl64.Vec3{0, 3, 0}, 0.5), 9.5, true},
		{"capsule along axis", CapsuleAt(mgl64.Vec3{2, 0, 0}, mgl64.Vec3{4, 0, 0}, 0.5), 11.5, true},
		{"out of range", SphereAt(mgl64.Vec3{15, 0, 0}, 1), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit := ray.Intersect(tt.vol)
			if hit != tt.hit {
				t.Fatalf("hit = %v, want %v", hit, tt.hit)
			}
			if hit && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("distance = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestRayStartingInsideMisses(t *testing.T) {
	ray := RayCast{Origin: mgl64.Vec3{0, 0, 0}, Direction: mgl64.Vec3{1, 0, 0}, MaxDistance: 10}
	if _, hit := ray.Intersect(SphereAt(mgl64.Vec3{0, 0, 0}, 1)); hit {
		t.Error("ray starting inside a sphere should not hit it")
	}
}

func TestCapsuleRotatesAboutMidpoint(t *testing.T) {
	s := Capsule(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0}, 0.25)
	pose := Pose{Position: mgl64.Vec3{10, 0, 0}, Rotation: quatY(90)}
	v := s.World(pose)

	if !v.Center.ApproxEqualThreshold(mgl64.Vec3{10, 0, 0}, 1e-9) {
		t.Errorf("midpoint = %v, want (10,0,0)", v.Center)
	}
	if math.Abs(v.A.X()-10) > 1e-9 || math.Abs(math.Abs(v.A.Z())-1) > 1e-9 {
		t.Errorf("endpoint A = %v, want rotated onto Z axis", v.A)
	}
}

func TestBoxOrientationComposesWithPose(t *testing.T) {
	s := Box(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 0.5, 0.5}, quatY(45))
	v := s.World(Pose{Rotation: quatY(45)})

	// 90 degrees total puts the long axis on Z.
	b := v.Bounds()
	if math.Abs(b.Max.Z()-2) > 1e-9 || math.Abs(b.Max.X()-0.5) > 1e-9 {
		t.Errorf("bounds = %v, want long axis on Z", b)
	}
}

func TestShapeValidate(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		ok    bool
	}{
		{"sphere", Sphere(mgl64.Vec3{}, 1), true},
		{"negative radius", Sphere(mgl64.Vec3{}, -1), false},
		{"box", Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent()), true},
		{"zero orientation", Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, mgl64.Quat{}), false},
		{"ray", Ray(mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, 5), true},
		{"ray without direction", Ray(mgl64.Vec3{}, mgl64.Vec3{}, 5), false},
		{"long ray", Ray(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, 1e12), true},
		{"infinite ray", Ray(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, math.Inf(1)), false},
		{"nan ray distance", Ray(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, math.NaN()), false},
		{"nan radius", Sphere(mgl64.Vec3{}, math.NaN()), false},
		{"infinite capsule end", Capsule(mgl64.Vec3{}, mgl64.Vec3{0, math.Inf(1), 0}, 1), false},
		{"nan extents", Box(mgl64.Vec3{}, mgl64.Vec3{1, math.NaN(), 1}, mgl64.QuatIdent()), false},
		{"unknown kind", Shape{Kind: 42}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.shape.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidShape) {
				t.Fatalf("expected ErrInvalidShape, got %v", err)
			}
		})
	}
}
