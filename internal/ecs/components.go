package ecs

import (
	"github.com/yohamta/donburi"

	"collision-server/internal/geom"
)

type TransformData struct {
	Pose geom.Pose
}

// NetworkStateData correlates an entity with its remote replicas.
// StateID 0 means the entity is purely local.
type NetworkStateData struct {
	StateID int32
}

type MovementData struct {
	ExternalMultiplier float64
}

// LinksData holds weak references to the spawning and owning entities.
type LinksData struct {
	Spawner Entity
	Owner   Entity
}

type NameData struct {
	Name string
}

type AuthorityData struct {
	Report bool
}

var (
	Transform    = donburi.NewComponentType[TransformData]()
	NetworkState = donburi.NewComponentType[NetworkStateData]()
	Movement     = donburi.NewComponentType[MovementData]()
	Links        = donburi.NewComponentType[LinksData]()
	Name         = donburi.NewComponentType[NameData]()

	// Authority marks entities whose collisions this process decides.
	// Report enables outbound collision events for them.
	Authority = donburi.NewComponentType[AuthorityData]()
)
