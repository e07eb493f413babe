package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Volume is a world-space sphere, capsule or box.
type Volume struct {
	Kind   Kind
	Center mgl64.Vec3
	A, B   mgl64.Vec3 // capsule segment
	Radius float64
	Half   mgl64.Vec3
	Orient mgl64.Quat
	axes   [3]mgl64.Vec3
}

func newBox(center, half mgl64.Vec3, orient mgl64.Quat) Volume {
	v := Volume{Kind: KindBox, Center: center, Half: half, Orient: orient}
	v.axes[0] = orient.Rotate(mgl64.Vec3{1, 0, 0})
	v.axes[1] = orient.Rotate(mgl64.Vec3{0, 1, 0})
	v.axes[2] = orient.Rotate(mgl64.Vec3{0, 0, 1})
	return v
}

// SphereAt builds a world-space sphere.
func SphereAt(center mgl64.Vec3, radius float64) Volume {
	return Volume{Kind: KindSphere, Center: center, Radius: radius}
}

// CapsuleAt builds a world-space capsule.
func CapsuleAt(a, b mgl64.Vec3, radius float64) Volume {
	return Volume{Kind: KindCapsule, Center: a.Add(b).Mul(0.5), A: a, B: b, Radius: radius}
}

// BoxAt builds a world-space oriented box.
func BoxAt(center, half mgl64.Vec3, orient mgl64.Quat) Volume {
	return newBox(center, half, orient.Normalize())
}

// Axes returns the box's local axes in world space.
func (v Volume) Axes() [3]mgl64.Vec3 { return v.axes }

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max mgl64.Vec3
}

// Overlaps reports whether two boxes intersect, touching included.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X() <= o.Max.X() && b.Max.X() >= o.Min.X() &&
		b.Min.Y() <= o.Max.Y() && b.Max.Y() >= o.Min.Y() &&
		b.Min.Z() <= o.Max.Z() && b.Max.Z() >= o.Min.Z()
}

// Bounds returns the volume's world AABB.
func (v Volume) Bounds() AABB {
	switch v.Kind {
	case KindSphere:
		r := mgl64.Vec3{v.Radius, v.Radius, v.Radius}
		return AABB{Min: v.Center.Sub(r), Max: v.Center.Add(r)}
	case KindCapsule:
		r := mgl64.Vec3{v.Radius, v.Radius, v.Radius}
		lo := mgl64.Vec3{math.Min(v.A.X(), v.B.X()), math.Min(v.A.Y(), v.B.Y()), math.Min(v.A.Z(), v.B.Z())}
		hi := mgl64.Vec3{math.Max(v.A.X(), v.B.X()), math.Max(v.A.Y(), v.B.Y()), math.Max(v.A.Z(), v.B.Z())}
		return AABB{Min: lo.Sub(r), Max: hi.Add(r)}
	case KindBox:
		var e mgl64.Vec3
		for i := 0; i < 3; i++ {
			e[i] = math.Abs(v.axes[0][i])*v.Half[0] +
				math.Abs(v.axes[1][i])*v.Half[1] +
				math.Abs(v.axes[2][i])*v.Half[2]
		}
		return AABB{Min: v.Center.Sub(e), Max: v.Center.Add(e)}
	}
	return AABB{Min: v.Center, Max: v.Center}
}

// ClosestPoint returns the point of the box nearest to p. Only valid for boxes.
func (v Volume) ClosestPoint(p mgl64.Vec3) mgl64.Vec3 {
	d := p.Sub(v.Center)
	q := v.Center
	for i := 0; i < 3; i++ {
		dist := clamp(d.Dot(v.axes[i]), -v.Half[i], v.Half[i])
		q = q.Add(v.axes[i].Mul(dist))
	}
	return q
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func distSq(a, b mgl64.Vec3) float64 {
	d := a.Sub(b)
	return d.Dot(d)
}
