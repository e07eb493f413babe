package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrInvalidShape is returned by Shape.Validate for malformed shapes.
var ErrInvalidShape = errors.New("geom: invalid shape")

// Kind identifies the variant stored in a Shape.
type Kind uint8

const (
	KindSphere Kind = iota + 1
	KindCapsule
	KindBox
	KindRay
)

func (k Kind) String() string {
	switch k {
	case KindSphere:
		return "sphere"
	case KindCapsule:
		return "capsule"
	case KindBox:
		return "box"
	case KindRay:
		return "ray"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a config name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "sphere":
		return KindSphere, nil
	case "capsule":
		return KindCapsule, nil
	case "box":
		return KindBox, nil
	case "ray":
		return KindRay, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidShape, s)
}

// Pose is an actor's world position and rotation for the current tick.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// IdentityPose is the pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// Shape is a collision shape in its owner's local space.
//
// Center is the sphere/box center or the ray origin. Start and End are the
// capsule segment endpoints. Orientation is only used by boxes.
type Shape struct {
	Kind        Kind
	Center      mgl64.Vec3
	Start, End  mgl64.Vec3
	Radius      float64
	HalfExtents mgl64.Vec3
	Orientation mgl64.Quat
	Direction   mgl64.Vec3
	MaxDistance float64
}

func Sphere(center mgl64.Vec3, radius float64) Shape {
	return Shape{Kind: KindSphere, Center: center, Radius: radius}
}

func Capsule(start, end mgl64.Vec3, radius float64) Shape {
	return Shape{Kind: KindCapsule, Start: start, End: end, Radius: radius}
}

func Box(center, halfExtents mgl64.Vec3, orientation mgl64.Quat) Shape {
	return Shape{Kind: KindBox, Center: center, HalfExtents: halfExtents, Orientation: orientation}
}

func Ray(origin, direction mgl64.Vec3, maxDistance float64) Shape {
	return Shape{Kind: KindRay, Center: origin, Direction: direction, MaxDistance: maxDistance}
}

// Validate reports configuration errors. Emitters are rejected at setup
// when their shape does not validate.
func (s Shape) Validate() error {
	switch s.Kind {
	case KindSphere:
		if !finiteVec(s.Center) || !finite(s.Radius) {
			return fmt.Errorf("%w: non-finite sphere", ErrInvalidShape)
		}
		if s.Radius < 0 {
			return fmt.Errorf("%w: negative sphere radius %g", ErrInvalidShape, s.Radius)
		}
	case KindCapsule:
		if !finiteVec(s.Start) || !finiteVec(s.End) || !finite(s.Radius) {
			return fmt.Errorf("%w: non-finite capsule", ErrInvalidShape)
		}
		if s.Radius < 0 {
			return fmt.Errorf("%w: negative capsule radius %g", ErrInvalidShape, s.Radius)
		}
	case KindBox:
		if !finiteVec(s.Center) || !finiteVec(s.HalfExtents) || !finiteVec(s.Orientation.V) || !finite(s.Orientation.W) {
			return fmt.Errorf("%w: non-finite box", ErrInvalidShape)
		}
		if s.HalfExtents.X() < 0 || s.HalfExtents.Y() < 0 || s.HalfExtents.Z() < 0 {
			return fmt.Errorf("%w: negative box extents %v", ErrInvalidShape, s.HalfExtents)
		}
		if s.Orientation.Len() == 0 {
			return fmt.Errorf("%w: zero box orientation", ErrInvalidShape)
		}
	case KindRay:
		if !finiteVec(s.Center) || !finiteVec(s.Direction) || !finite(s.MaxDistance) {
			return fmt.Errorf("%w: non-finite ray", ErrInvalidShape)
		}
		if s.Direction.Len() == 0 {
			return fmt.Errorf("%w: zero ray direction", ErrInvalidShape)
		}
		if s.MaxDistance <= 0 {
			return fmt.Errorf("%w: ray max distance %g", ErrInvalidShape, s.MaxDistance)
		}
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidShape, s.Kind)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteVec(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}

// IsVolume reports whether the shape is queried with an overlap test.
func (s Shape) IsVolume() bool {
	return s.Kind == KindSphere || s.Kind == KindCapsule || s.Kind == KindBox
}

// World resolves a volume shape against the owner's pose.
//
// Sphere centers and box centers are offset by the position only. Capsule
// endpoints are offset and then rotated about their midpoint. Box
// orientation is composed with the pose rotation.
func (s Shape) World(p Pose) Volume {
	rot := p.Rotation
	if rot.Len() == 0 {
		rot = mgl64.QuatIdent()
	}
	switch s.Kind {
	case KindSphere:
		return Volume{Kind: KindSphere, Center: p.Position.Add(s.Center), Radius: s.Radius}
	case KindCapsule:
		a := p.Position.Add(s.Start)
		b := p.Position.Add(s.End)
		mid := a.Add(b).Mul(0.5)
		a = mid.Add(rot.Rotate(a.Sub(mid)))
		b = mid.Add(rot.Rotate(b.Sub(mid)))
		return Volume{Kind: KindCapsule, Center: mid, A: a, B: b, Radius: s.Radius}
	case KindBox:
		orient := s.Orientation
		if orient.Len() == 0 {
			orient = mgl64.QuatIdent()
		}
		return newBox(p.Position.Add(s.Center), s.HalfExtents, orient.Mul(rot).Normalize())
	}
	return Volume{}
}

// WorldRay resolves a ray shape against the owner's pose.
func (s Shape) WorldRay(p Pose) RayCast {
	rot := p.Rotation
	if rot.Len() == 0 {
		rot = mgl64.QuatIdent()
	}
	return RayCast{
		Origin:      p.Position.Add(s.Center),
		Direction:   rot.Rotate(s.Direction).Normalize(),
		MaxDistance: s.MaxDistance,
	}
}
