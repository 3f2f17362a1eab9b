package spawner

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bossspawner/internal/game"
	"bossspawner/internal/geom"
	"bossspawner/internal/world"
)

type trackerEnv struct {
	world *world.Memory
	sim   *Simulator
	clock *game.FakeClock
	tr    *Tracker
}

func newTrackerEnv(t *testing.T, bossID string) *trackerEnv {
	t.Helper()
	w := world.NewMemory()
	sim := NewSimulator(w, nil)
	clock := game.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tr := NewTracker(sim, clock, rand.New(rand.NewPCG(1, 2)), TrackerConfig{
		BossID: bossID,
		Groups: []Group{{Name: "PirateBase", Weight: 1}},
	}, nil)
	return &trackerEnv{world: w, sim: sim, clock: clock, tr: tr}
}

func TestTracker_SuccessTagsAndUnsubscribes(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	var spawned []world.Entity
	env.tr.OnSpawned(func(e world.Entity) { spawned = append(spawned, e) })

	target := geom.Translation(mgl64.Vec3{100, 0, 0})
	require.True(t, env.tr.RequestSpawn(target, false))
	assert.Equal(t, StateSpawning, env.tr.State())
	assert.Equal(t, 1, env.sim.Subscribers())
	assert.False(t, env.tr.RequestID().IsZero())

	env.sim.Update(env.clock.Now())

	require.Equal(t, StateSuccess, env.tr.State())
	require.Len(t, spawned, 1)
	assert.Same(t, spawned[0], env.tr.Entity())
	assert.True(t, IsTaggedFor(env.tr.Entity(), "alpha"))
	assert.Equal(t, 0, env.sim.Subscribers())

	req := env.sim.Requests()[0]
	assert.Equal(t, []string{"PirateBase"}, req.SpawnGroups)
	assert.Equal(t, RequestTag, req.RequestTag)
	assert.Equal(t, "alpha", req.Context)
}

func TestTracker_IgnoresEntityBeyondTolerance(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	env.sim.SetOffset(mgl64.Vec3{MatchTolerance + 1, 0, 0})

	require.True(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{}), false))
	env.sim.Update(env.clock.Now())
	assert.Equal(t, StateSpawning, env.tr.State())
	assert.Nil(t, env.tr.Entity())

	env.sim.SetOffset(mgl64.Vec3{MatchTolerance - 1, 0, 0})
	env.tr.Reset()
	require.True(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{}), false))
	env.sim.Update(env.clock.Now())
	assert.Equal(t, StateSuccess, env.tr.State())
}

func TestTracker_IgnoresOtherBossesEntities(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	require.True(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{}), false))

	other := env.world.Spawn(world.KindGrid, "x", mgl64.Vec3{}, 10)
	other.SetTag(InstanceTagKey, "beta")
	env.tr.notify(other)

	assert.Equal(t, StateSpawning, env.tr.State())
}

func TestTracker_TimeoutFailsAndUnsubscribes(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	env.sim.SetDrop(true)

	require.True(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{}), false))
	env.tr.Update(env.clock.Advance(DefaultTimeout))
	assert.Equal(t, StateSpawning, env.tr.State())

	env.tr.Update(env.clock.Advance(time.Millisecond))
	assert.Equal(t, StateFailure, env.tr.State())
	assert.Equal(t, FailureTimeout, env.tr.Failure())
	assert.Equal(t, 0, env.sim.Subscribers())
}

func TestTracker_RejectionFailsImmediately(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	env.sim.SetReject(true)

	assert.False(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{}), true))
	assert.Equal(t, StateFailure, env.tr.State())
	assert.Equal(t, FailureRejected, env.tr.Failure())
	assert.Equal(t, 0, env.sim.Subscribers())
	assert.True(t, env.sim.Requests()[0].IgnoreSafety)
}

func TestTracker_ProtectionRetriedUntilAccepted(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	env.sim.FailProtection(2)

	require.True(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{}), false))
	env.sim.Update(env.clock.Now())
	id := env.tr.Entity().ID()

	env.tr.Update(env.clock.Now())
	env.tr.Update(env.clock.Now())
	assert.False(t, env.tr.Protected())
	assert.False(t, env.sim.IsProtected(id))

	env.tr.Update(env.clock.Now())
	assert.True(t, env.tr.Protected())
	assert.True(t, env.sim.IsProtected(id))
}

func TestTracker_SecondRequestWhileSpawningIsRefused(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	require.True(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{}), false))
	assert.False(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{1, 0, 0}), false))
	assert.Len(t, env.sim.Requests(), 1)
}

func TestTracker_Adopt(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	var calls int
	env.tr.OnSpawned(func(world.Entity) { calls++ })

	foreign := env.world.Spawn(world.KindGrid, "foreign", mgl64.Vec3{}, 10)
	foreign.SetTag(InstanceTagKey, "beta")
	assert.False(t, env.tr.Adopt(foreign))
	assert.Equal(t, StateIdle, env.tr.State())

	untagged := env.world.Spawn(world.KindGrid, "stray", mgl64.Vec3{}, 10)
	assert.True(t, env.tr.Adopt(untagged))
	assert.Equal(t, StateSuccess, env.tr.State())
	assert.True(t, IsTaggedFor(untagged, "alpha"))
	assert.Equal(t, 1, calls)
}

func TestTracker_CloseKeepsEntityInWorld(t *testing.T) {
	env := newTrackerEnv(t, "alpha")
	require.True(t, env.tr.RequestSpawn(geom.Translation(mgl64.Vec3{}), false))
	env.sim.Update(env.clock.Now())
	e := env.tr.Entity()
	require.Equal(t, StateSuccess, env.tr.State())

	env.tr.Close()
	assert.Nil(t, env.tr.Entity())
	assert.Equal(t, StateIdle, env.tr.State(), "no success without an entity")
	assert.False(t, env.tr.Protected())
	assert.False(t, e.Closed())
}

func TestPickGroup_Weighted(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	groups := []Group{{Name: "rare", Weight: 1}, {Name: "common", Weight: 9}}

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		counts[PickGroup(rng, groups)]++
	}
	assert.Greater(t, counts["common"], counts["rare"]*4)
	assert.Empty(t, PickGroup(rng, nil))
}
