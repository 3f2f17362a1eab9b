package registry

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bossspawner/internal/activation"
	"bossspawner/internal/config"
	"bossspawner/internal/game"
	"bossspawner/internal/geom"
	"bossspawner/internal/marker"
	"bossspawner/internal/spawner"
	"bossspawner/internal/telemetry"
	"bossspawner/internal/world"
)

const twoBosses = `
timezone: UTC
trigger_mode: encounter
encounter_range: 2000
bosses:
  - id: alpha
    enabled: true
    spawn_groups: [{name: A}]
    spawn_sphere: {radius: 100000}
    countdown_gps_name: "alpha in {countdown}"
    schedules: [{offset_hours: 0, interval_hours: 1}]
  - id: beta
    enabled: true
    spawn_groups: [{name: B}]
    spawn_sphere: {x: 1000000000, radius: 100000}
    schedules: [{offset_hours: 0, interval_hours: 1}]
`

// scriptedFinder returns the sphere centre and can be told to panic for one
// sphere.
type scriptedFinder struct {
	calls   int
	panicAt *mgl64.Vec3
}

func (f *scriptedFinder) Find(_ bool, s geom.Sphere, _ float64) *geom.Transform {
	f.calls++
	if f.panicAt != nil && s.Center == *f.panicAt {
		f.panicAt = nil
		panic("finder exploded")
	}
	t := geom.Translation(s.Center)
	return &t
}

func (f *scriptedFinder) IsObstructed(mgl64.Vec3, float64) bool { return false }

type env struct {
	world   *world.Memory
	sim     *spawner.Simulator
	markers *marker.Memory
	backend *activation.MemoryBackend
	store   *activation.Store
	finder  *scriptedFinder
	clock   *game.FakeClock
	events  *telemetry.MemoryRepository
}

func newEnv() *env {
	w := world.NewMemory()
	backend := activation.NewMemoryBackend()
	clock := game.NewFakeClock(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	return &env{
		world:   w,
		sim:     spawner.NewSimulator(w, nil),
		markers: marker.NewMemory(),
		backend: backend,
		store:   activation.NewStore(backend, nil),
		finder:  &scriptedFinder{},
		clock:   clock,
		events:  telemetry.NewMemoryRepository(0, clock.Now),
	}
}

func (e *env) deps() Deps {
	return Deps{
		World:     e.world,
		Spawner:   e.sim,
		Markers:   e.markers,
		Store:     e.store,
		Finder:    e.finder,
		Clock:     e.clock,
		Rand:      rand.New(rand.NewPCG(3, 4)),
		Telemetry: e.events,
	}
}

func (e *env) newRegistry(t *testing.T, doc string) *Registry {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	r, err := New(cfg, e.deps())
	require.NoError(t, err)
	return r
}

func (e *env) step(r *Registry) {
	now := e.clock.Advance(time.Second)
	r.Update(now)
	e.sim.Update(now)
}

func statusOf(t *testing.T, r *Registry, id string) (closed bool, entity int64) {
	t.Helper()
	s, err := r.BossStatus(id)
	require.NoError(t, err)
	return s.Closed, s.EntityID
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	e := newEnv()
	cfg := &config.Config{Bosses: []config.Boss{{ID: "x"}}}

	_, err := New(cfg, e.deps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one spawn group is required")

	_, err = New(config.Default(), Deps{})
	assert.ErrorContains(t, err, "world is required")
}

func TestUpdate_AdoptsTaggedEntitiesOnFirstTick(t *testing.T) {
	e := newEnv()
	leftover := e.world.Spawn(world.KindGrid, "A", mgl64.Vec3{90000, 0, 0}, 80)
	leftover.SetTag(spawner.InstanceTagKey, "alpha")
	r := e.newRegistry(t, twoBosses)

	e.step(r)

	_, id := statusOf(t, r, "alpha")
	assert.Equal(t, leftover.ID(), id)
	assert.Equal(t, "[BOSS] alpha", leftover.DisplayName())
	_, id = statusOf(t, r, "beta")
	assert.Zero(t, id)
}

func TestUpdate_DisabledStillFlushesStore(t *testing.T) {
	e := newEnv()
	r := e.newRegistry(t, twoBosses)
	r.SetEnabled(false)
	e.store.OnActivate("ghost", mgl64.Vec3{1, 2, 3})

	e.step(r)

	assert.Equal(t, 0, e.finder.calls)
	assert.Equal(t, 1, e.backend.Saves())
	assert.False(t, e.store.Dirty())

	r.SetEnabled(true)
	e.step(r)
	assert.Positive(t, e.finder.calls)
}

func TestUpdate_PanicClosesAndRebuildsOnlyThatBoss(t *testing.T) {
	e := newEnv()
	e.finder.panicAt = &mgl64.Vec3{1000000000, 0, 0}
	r := e.newRegistry(t, twoBosses)

	e.step(r)

	closed, _ := statusOf(t, r, "beta")
	assert.False(t, closed, "replaced by a fresh lifecycle")
	alpha, err := r.BossStatus("alpha")
	require.NoError(t, err)
	require.NotNil(t, alpha.Position, "alpha kept updating")

	evs, err := e.events.GetEvents(time.Time{}, []telemetry.EventType{telemetry.EventClosed})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "beta", evs[0].BossID)
	assert.JSONEq(t, `{"reason":"panic"}`, evs[0].Metadata)

	e.step(r)
	beta, err := r.BossStatus("beta")
	require.NoError(t, err)
	assert.NotNil(t, beta.Position)
}

func TestSpawnAndDespawn(t *testing.T) {
	e := newEnv()
	r := e.newRegistry(t, twoBosses)
	e.step(r)

	ok, err := r.Spawn("alpha")
	require.NoError(t, err)
	assert.True(t, ok)
	e.step(r)
	_, entityID := statusOf(t, r, "alpha")
	require.NotZero(t, entityID)
	ent, found := e.world.Entity(entityID)
	require.True(t, found)

	require.NoError(t, r.Despawn("alpha"))
	assert.True(t, ent.Closed())

	e.step(r)
	closed, id := statusOf(t, r, "alpha")
	assert.False(t, closed)
	assert.Zero(t, id)
}

func TestAdminOps_UnknownBoss(t *testing.T) {
	e := newEnv()
	r := e.newRegistry(t, twoBosses)

	_, err := r.Spawn("gamma")
	assert.ErrorIs(t, err, ErrUnknownBoss)
	assert.ErrorIs(t, r.Despawn("gamma"), ErrUnknownBoss)
	_, err = r.ResetPosition("gamma")
	assert.ErrorIs(t, err, ErrUnknownBoss)
	_, err = r.Activate("gamma")
	assert.ErrorIs(t, err, ErrUnknownBoss)
}

func TestActivateAndResetPosition(t *testing.T) {
	e := newEnv()
	r := e.newRegistry(t, twoBosses)
	e.step(r)

	ok, err := r.Activate("alpha")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ResetPosition("alpha")
	require.NoError(t, err)
	assert.True(t, ok)

	e.step(r)
	_, persisted := e.store.TryGet("alpha")
	assert.True(t, persisted)
	assert.Equal(t, 1, e.backend.Saves())
}

func TestReloadConfig_InvalidKeepsBosses(t *testing.T) {
	e := newEnv()
	r := e.newRegistry(t, twoBosses)

	err := r.ReloadConfig(&config.Config{Bosses: []config.Boss{{ID: ""}}})
	require.Error(t, err)
	assert.Len(t, r.Status(), 2)
}

func TestReloadConfig_ReplacesBosses(t *testing.T) {
	e := newEnv()
	r := e.newRegistry(t, twoBosses)
	e.step(r)
	_, err := r.Spawn("alpha")
	require.NoError(t, err)
	e.step(r)
	_, entityID := statusOf(t, r, "alpha")
	ent, _ := e.world.Entity(entityID)

	next, err := config.Parse([]byte(`
bosses:
  - id: gamma
    enabled: true
    spawn_groups: [{name: G}]
    spawn_sphere: {radius: 10}
`))
	require.NoError(t, err)
	require.NoError(t, r.ReloadConfig(next))

	assert.True(t, ent.Closed(), "reload despawns every boss")
	status := r.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "gamma", status[0].ID)
	assert.Same(t, next, r.Config())

	evs, err := e.events.GetEvents(time.Time{}, []telemetry.EventType{telemetry.EventConfigReloaded})
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestReload_UsesLoader(t *testing.T) {
	e := newEnv()
	r := e.newRegistry(t, twoBosses)
	assert.ErrorIs(t, r.Reload(), ErrNoLoader)

	deps := e.deps()
	deps.Loader = func() (*config.Config, error) { return nil, errors.New("disk gone") }
	cfg, err := config.Parse([]byte(twoBosses))
	require.NoError(t, err)
	r, err = New(cfg, deps)
	require.NoError(t, err)
	assert.ErrorContains(t, r.Reload(), "disk gone")
	assert.Len(t, r.Status(), 2)
}

func TestReload_RestoresGlobalSwitch(t *testing.T) {
	e := newEnv()
	cfg, err := config.Parse([]byte(twoBosses))
	require.NoError(t, err)
	deps := e.deps()
	deps.Loader = func() (*config.Config, error) { return config.Parse([]byte(twoBosses)) }
	r, err := New(cfg, deps)
	require.NoError(t, err)

	r.SetEnabled(false)
	require.NoError(t, r.Reload())
	assert.True(t, r.Enabled())
}

func TestShutdown_DetachesAndFlushes(t *testing.T) {
	e := newEnv()
	r := e.newRegistry(t, twoBosses)
	e.step(r)
	ok, err := r.Activate("alpha")
	require.NoError(t, err)
	require.True(t, ok)

	r.Shutdown()

	restored := activation.NewStore(e.backend, nil)
	require.NoError(t, restored.Load())
	_, ok = restored.TryGet("alpha")
	assert.True(t, ok)
	for _, s := range r.Status() {
		assert.True(t, s.Closed)
	}
}
