package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const epsilon = 1e-9

// Overlaps reports whether two world volumes intersect. Touching counts.
func Overlaps(a, b Volume) bool {
	if a.Kind > b.Kind {
		a, b = b, a
	}
	switch a.Kind {
	case KindSphere:
		switch b.Kind {
		case KindSphere:
			r := a.Radius + b.Radius
			return distSq(a.Center, b.Center) <= r*r
		case KindCapsule:
			c := ClosestPointOnSegment(a.Center, b.A, b.B)
			r := a.Radius + b.Radius
			return distSq(a.Center, c) <= r*r
		case KindBox:
			return distSq(a.Center, b.ClosestPoint(a.Center)) <= a.Radius*a.Radius
		}
	case KindCapsule:
		switch b.Kind {
		case KindCapsule:
			r := a.Radius + b.Radius
			return SegmentSegmentDistSq(a.A, a.B, b.A, b.B) <= r*r
		case KindBox:
			return segmentBoxDistSq(a.A, a.B, b) <= a.Radius*a.Radius
		}
	case KindBox:
		return boxBox(a, b)
	}
	return false
}

// ClosestPointOnSegment returns the point of segment ab nearest to p.
func ClosestPointOnSegment(p, a, b mgl64.Vec3) mgl64.Vec3 {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den < epsilon {
		return a
	}
	t := clamp(p.Sub(a).Dot(ab)/den, 0, 1)
	return a.Add(ab.Mul(t))
}

// SegmentSegmentDistSq returns the squared distance between segments p1q1
// and p2q2.
func SegmentSegmentDistSq(p1, q1, p2, q2 mgl64.Vec3) float64 {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	var s, t float64
	switch {
	case a <= epsilon && e <= epsilon:
		return r.Dot(r)
	case a <= epsilon:
		t = clamp(f/e, 0, 1)
	default:
		c := d1.Dot(r)
		if e <= epsilon {
			s = clamp(-c/a, 0, 1)
		} else {
			b := d1.Dot(d2)
			den := a*e - b*b
			if den > epsilon {
				s = clamp((b*f-c*e)/den, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = clamp((b-c)/a, 0, 1)
			}
		}
	}
	c1 := p1.Add(d1.Mul(s))
	c2 := p2.Add(d2.Mul(t))
	return distSq(c1, c2)
}

// segmentBoxDistSq returns the squared distance from segment ab to an
// oriented box. The distance along the segment is convex, so a golden
// section search converges on the minimum.
func segmentBoxDistSq(a, b mgl64.Vec3, box Volume) float64 {
	if segmentHitsBox(a, b, box) {
		return 0
	}
	f := func(t float64) float64 {
		p := a.Add(b.Sub(a).Mul(t))
		return distSq(p, box.ClosestPoint(p))
	}
	const invPhi = 0.6180339887498949
	lo, hi := 0.0, 1.0
	x1 := hi - invPhi*(hi-lo)
	x2 := lo + invPhi*(hi-lo)
	f1, f2 := f(x1), f(x2)
	for i := 0; i < 48; i++ {
		if f1 < f2 {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - invPhi*(hi-lo)
			f1 = f(x1)
		} else {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + invPhi*(hi-lo)
			f2 = f(x2)
		}
	}
	return math.Min(math.Min(f1, f2), math.Min(f(0), f(1)))
}

// segmentHitsBox runs the slab test for a segment in the box's frame.
func segmentHitsBox(a, b mgl64.Vec3, box Volume) bool {
	d := b.Sub(a)
	length := d.Len()
	if length < epsilon {
		return false
	}
	t, ok := rayBox(a, d.Mul(1/length), box)
	return ok && t <= length
}

// boxBox runs the separating axis test over the 15 candidate axes.
func boxBox(a, b Volume) bool {
	var r, absR [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = a.axes[i].Dot(b.axes[j])
			absR[i][j] = math.Abs(r[i][j]) + epsilon
		}
	}
	tw := b.Center.Sub(a.Center)
	t := [3]float64{tw.Dot(a.axes[0]), tw.Dot(a.axes[1]), tw.Dot(a.axes[2])}
	ah, bh := a.Half, b.Half

	for i := 0; i < 3; i++ {
		ra := ah[i]
		rb := bh[0]*absR[i][0] + bh[1]*absR[i][1] + bh[2]*absR[i][2]
		if math.Abs(t[i]) > ra+rb {
			return false
		}
	}
	for j := 0; j < 3; j++ {
		ra := ah[0]*absR[0][j] + ah[1]*absR[1][j] + ah[2]*absR[2][j]
		rb := bh[j]
		if math.Abs(t[0]*r[0][j]+t[1]*r[1][j]+t[2]*r[2][j]) > ra+rb {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		i1, i2 := (i+1)%3, (i+2)%3
		for j := 0; j < 3; j++ {
			j1, j2 := (j+1)%3, (j+2)%3
			ra := ah[i1]*absR[i2][j] + ah[i2]*absR[i1][j]
			rb := bh[j1]*absR[i][j2] + bh[j2]*absR[i][j1]
			if math.Abs(t[i2]*r[i1][j]-t[i1]*r[i2][j]) > ra+rb {
				return false
			}
		}
	}
	return true
}
