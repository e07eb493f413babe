package collision

import (
	"collision-server/internal/action"
	"collision-server/internal/actor"
	"collision-server/internal/contact"
	"collision-server/internal/geom"
)

// Emitter is an actor's source of collision checks: one volume or ray
// shape in the actor's local space plus the actions run on hits.
type Emitter struct {
	Actor   *actor.Actor
	Shape   geom.Shape
	Actions []*action.CollisionAction
	// Debug logs every hit the emitter sees.
	Debug bool

	tracker *contact.Tracker
	once    *contact.Once
	takeoff bool

	destroyTick uint64
	registered  bool
}

// IsRay reports whether the emitter casts a ray instead of a volume.
func (e *Emitter) IsRay() bool {
	return e.Shape.Kind == geom.KindRay
}

// InitialTakeoff reports whether spawner hits are still being ignored.
// Ray emitters never take off.
func (e *Emitter) InitialTakeoff() bool {
	return e.takeoff
}

// Contacts returns the number of colliders the emitter is touching.
func (e *Emitter) Contacts() int {
	if e.tracker == nil {
		return 0
	}
	return e.tracker.Len()
}
