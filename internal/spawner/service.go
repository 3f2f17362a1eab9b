// Package spawner talks to the external spawning facility.
//
// Requests are fire-and-forget: the service answers synchronously whether it
// accepted the request, and announces every entity it later materializes to
// all subscribers. Tracker correlates those announcements with one request.
package spawner

import (
	"bossspawner/internal/geom"
	"bossspawner/internal/world"
)

// InstanceTagKey is the entity tag holding the owning boss id.
const InstanceTagKey = "custom_boss.instance_id"

// RequestTag identifies this module's requests to the spawning facility.
const RequestTag = "CustomBossSpawner"

type Request struct {
	SpawnGroups  []string
	Target       geom.Transform
	IgnoreSafety bool
	FactionTag   string
	RequestTag   string
	// Context is written by the service into InstanceTagKey on every entity
	// spawned for this request.
	Context string
}

type Listener func(e world.Entity)

type SubscriptionID uint64

type Service interface {
	// RequestSpawn returns false if the request was rejected outright.
	RequestSpawn(req Request) bool
	Subscribe(fn Listener) SubscriptionID
	Unsubscribe(id SubscriptionID)
	// MarkProtectedFromCleanup exempts e from the service's own despawn sweeps.
	MarkProtectedFromCleanup(e world.Entity) bool
}

// IsTaggedFor reports whether e carries bossID's identity marker.
func IsTaggedFor(e world.Entity, bossID string) bool {
	if e == nil {
		return false
	}
	v, ok := e.Tag(InstanceTagKey)
	return ok && v == bossID
}
