package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// RayCast is a world-space ray with a unit direction.
type RayCast struct {
	Origin      mgl64.Vec3
	Direction   mgl64.Vec3
	MaxDistance float64
}

// Bounds returns the AABB swept by the ray.
func (r RayCast) Bounds() AABB {
	end := r.Origin.Add(r.Direction.Mul(r.MaxDistance))
	return AABB{
		Min: mgl64.Vec3{math.Min(r.Origin.X(), end.X()), math.Min(r.Origin.Y(), end.Y()), math.Min(r.Origin.Z(), end.Z())},
		Max: mgl64.Vec3{math.Max(r.Origin.X(), end.X()), math.Max(r.Origin.Y(), end.Y()), math.Max(r.Origin.Z(), end.Z())},
	}
}

// Point returns the point at distance t along the ray.
func (r RayCast) Point(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Intersect returns the entry distance of the ray into v. Rays starting
// inside a volume do not hit it.
func (r RayCast) Intersect(v Volume) (float64, bool) {
	var t float64
	var ok bool
	switch v.Kind {
	case KindSphere:
		t, ok = raySphere(r.Origin, r.Direction, v.Center, v.Radius)
	case KindCapsule:
		t, ok = rayCapsule(r.Origin, r.Direction, v.A, v.B, v.Radius)
	case KindBox:
		t, ok = rayBox(r.Origin, r.Direction, v)
	}
	if !ok || t > r.MaxDistance {
		return 0, false
	}
	return t, true
}

func raySphere(o, d, c mgl64.Vec3, radius float64) (float64, bool) {
	oc := o.Sub(c)
	b := oc.Dot(d)
	cc := oc.Dot(oc) - radius*radius
	if cc < 0 {
		return 0, false
	}
	h := b*b - cc
	if h < 0 {
		return 0, false
	}
	t := -b - math.Sqrt(h)
	if t < 0 {
		return 0, false
	}
	return t, true
}

// rayBox runs the slab test in the box's local frame.
func rayBox(o, d mgl64.Vec3, box Volume) (float64, bool) {
	p := box.Center.Sub(o)
	tmin, tmax := math.Inf(-1), math.Inf(1)
	for i := 0; i < 3; i++ {
		e := box.axes[i].Dot(p)
		f := box.axes[i].Dot(d)
		h := box.Half[i]
		if math.Abs(f) > epsilon {
			t1 := (e + h) / f
			t2 := (e - h) / f
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			tmin = math.Max(tmin, t1)
			tmax = math.Min(tmax, t2)
			if tmin > tmax {
				return 0, false
			}
		} else if -e-h > 0 || -e+h < 0 {
			return 0, false
		}
	}
	if tmin < 0 {
		return 0, false
	}
	return tmin, true
}

// rayCapsule takes the nearest entry into the side wall or either cap.
func rayCapsule(o, d, a, b mgl64.Vec3, radius float64) (float64, bool) {
	if distSq(o, ClosestPointOnSegment(o, a, b)) < radius*radius {
		return 0, false
	}
	best, found := math.Inf(1), false
	ba := b.Sub(a)
	oa := o.Sub(a)
	baba := ba.Dot(ba)
	bard := ba.Dot(d)
	baoa := ba.Dot(oa)
	rdoa := d.Dot(oa)
	oaoa := oa.Dot(oa)
	k := baba - bard*bard
	if k > epsilon {
		kb := baba*rdoa - baoa*bard
		kc := baba*oaoa - baoa*baoa - radius*radius*baba
		h := kb*kb - k*kc
		if h >= 0 {
			t := (-kb - math.Sqrt(h)) / k
			y := baoa + t*bard
			if t >= 0 && y > 0 && y < baba {
				best, found = t, true
			}
		}
	}
	for _, c := range [2]mgl64.Vec3{a, b} {
		if t, ok := raySphere(o, d, c, radius); ok && t < best {
			best, found = t, true
		}
	}
	return best, found
}
