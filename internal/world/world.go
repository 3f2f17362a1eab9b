// Package world describes the read side of the game world the spawner needs:
// entities, planets and players. The host game implements Querier; Memory is
// a self-contained implementation used for standalone runs and tests.
package world

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"bossspawner/internal/geom"
)

type Kind uint8

const (
	KindAny Kind = iota
	KindGrid
	KindCharacter
	KindFloatingObject
)

func (k Kind) String() string {
	switch k {
	case KindGrid:
		return "grid"
	case KindCharacter:
		return "character"
	case KindFloatingObject:
		return "floating_object"
	default:
		return "any"
	}
}

var ErrQueryFailed = errors.New("world query failed")

// Entity is a live handle. Closed reports whether it has left the world.
type Entity interface {
	ID() int64
	Kind() Kind
	Position() mgl64.Vec3
	Closed() bool
	Close()

	// Tag and SetTag access the per-entity key/value store used for identity markers.
	Tag(key string) (string, bool)
	SetTag(key, value string)

	BlockCount() int
	Powered() bool
	DisplayName() string
	SetDisplayName(name string)
}

type Planet interface {
	Name() string
	Center() mgl64.Vec3
	AverageRadius() float64
	ClosestSurfacePoint(p mgl64.Vec3) mgl64.Vec3
	// IsFlat probes the terrain within probeRadius of point; tolerance is the
	// maximum height deviation accepted.
	IsFlat(point mgl64.Vec3, probeRadius, tolerance float64) bool
}

type Player struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Position     mgl64.Vec3 `json:"position"`
	HasCharacter bool       `json:"has_character"`
}

type Querier interface {
	EntitiesInSphere(s geom.Sphere, kind Kind) ([]Entity, error)
	ClosestPlanet(p mgl64.Vec3) (Planet, bool)
	// PlayersInSphere returns players whose character is inside s.
	PlayersInSphere(s geom.Sphere) ([]Player, error)
	HasNaturalGravity(p mgl64.Vec3) bool
}
