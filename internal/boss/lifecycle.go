// Package boss runs the lifecycle of a single boss: scheduled activation,
// spawn position selection, spawn tracking, abandonment and map markers.
//
// A Lifecycle is not safe for concurrent use. Its owner calls Update from a
// single goroutine and routes every other call through the same goroutine.
package boss

import (
	"errors"
	"fmt"
	"image/color"
	"math/rand/v2"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"bossspawner/internal/activation"
	"bossspawner/internal/config"
	"bossspawner/internal/game"
	"bossspawner/internal/geom"
	"bossspawner/internal/marker"
	"bossspawner/internal/schedule"
	"bossspawner/internal/spawner"
	"bossspawner/internal/telemetry"
	"bossspawner/internal/world"
)

const (
	// RespawnRadius bounds the re-roll around a cached position so the final
	// spawn point differs from the advertised one.
	RespawnRadius = 10000.0
	DisplayPrefix = "[BOSS] "

	pulseInterval = time.Second
)

// PositionFinder picks spawn transforms.
type PositionFinder interface {
	Find(onPlanet bool, sphere geom.Sphere, clearance float64) *geom.Transform
	IsObstructed(p mgl64.Vec3, clearance float64) bool
}

// Settings are the global knobs shared by every boss.
type Settings struct {
	// Enabled is the global switch; nil means always on.
	Enabled        func() bool
	EncounterRange float64
	TriggerMode    string
	Abandon        config.Abandon
	Marker         MarkerStyle
}

type MarkerStyle struct {
	Color         color.RGBA
	DecaySeconds  float64
	SuppressSound bool
}

type Deps struct {
	World     world.Querier
	Spawner   spawner.Service
	Markers   marker.Channel
	Store     *activation.Store
	Finder    PositionFinder
	Clock     game.Clock
	Rand      *rand.Rand
	Logger    *zap.Logger
	Telemetry telemetry.Recorder
	Settings  Settings
}

func (d *Deps) validate() error {
	var errs []error
	if d.World == nil {
		errs = append(errs, errors.New("world is required"))
	}
	if d.Spawner == nil {
		errs = append(errs, errors.New("spawner is required"))
	}
	if d.Store == nil {
		errs = append(errs, errors.New("activation store is required"))
	}
	if d.Finder == nil {
		errs = append(errs, errors.New("position finder is required"))
	}
	return errors.Join(errs...)
}

type Lifecycle struct {
	cfg  config.Boss
	deps Deps
	log  *zap.Logger

	scheduler *schedule.Scheduler
	tracker   *spawner.Tracker
	trigger   Trigger
	abandon   Abandoner
	abandonR  float64
	markerID  int64

	activation     *geom.Transform
	activated      bool
	originalBlocks int
	closed         bool
	closeReason    string
	lastPulse      time.Time
	markerShown    bool
	adopting       bool
	lateTarget     *mgl64.Vec3 // aim of a timed-out request whose entity may still arrive
}

// New builds a lifecycle. Call Initialize before the first Update.
func New(cfg config.Boss, deps Deps) (*Lifecycle, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("boss %s: %w", cfg.ID, err)
	}
	if deps.Markers == nil {
		deps.Markers = marker.Discard{}
	}
	if deps.Clock == nil {
		deps.Clock = game.RealClock{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Discard{}
	}
	if deps.Settings.Marker.DecaySeconds <= 0 {
		deps.Settings.Marker.DecaySeconds = marker.DefaultDecaySeconds
	}
	if deps.Settings.Marker.Color == (color.RGBA{}) {
		deps.Settings.Marker.Color = marker.DefaultColor
	}

	trigger, err := newTrigger(cfg.Trigger(deps.Settings.TriggerMode), deps.Settings.EncounterRange)
	if err != nil {
		return nil, fmt.Errorf("boss %s: %w", cfg.ID, err)
	}
	policy := cfg.AbandonPolicy(deps.Settings.Abandon)
	abandon, err := newAbandoner(policy)
	if err != nil {
		return nil, fmt.Errorf("boss %s: %w", cfg.ID, err)
	}

	log := deps.Logger.Named("boss").With(zap.String("boss", cfg.ID))
	groups := make([]spawner.Group, 0, len(cfg.SpawnGroups))
	for _, g := range cfg.SpawnGroups {
		groups = append(groups, spawner.Group{Name: g.Name, Weight: g.Weight})
	}

	l := &Lifecycle{
		cfg:       cfg,
		deps:      deps,
		log:       log,
		scheduler: schedule.NewScheduler(cfg.Schedules),
		trigger:   trigger,
		abandon:   abandon,
		abandonR:  policy.RadiusOr(config.DefaultAbandonRadius),
		markerID:  marker.IDFor(cfg.ID),
	}
	l.tracker = spawner.NewTracker(deps.Spawner, deps.Clock, deps.Rand, spawner.TrackerConfig{
		BossID:     cfg.ID,
		FactionTag: cfg.FactionTag,
		Groups:     groups,
	}, deps.Logger)
	l.tracker.OnSpawned(l.onSpawned)
	return l, nil
}

func (l *Lifecycle) ID() string           { return l.cfg.ID }
func (l *Lifecycle) Config() config.Boss  { return l.cfg }
func (l *Lifecycle) Closed() bool         { return l.closed }
func (l *Lifecycle) Activated() bool      { return l.activated }
func (l *Lifecycle) Entity() world.Entity { return l.tracker.Entity() }
func (l *Lifecycle) Tracker() *spawner.Tracker {
	return l.tracker
}

// Deps returns the collaborators with defaults filled in.
func (l *Lifecycle) Deps() Deps { return l.deps }

// ActivationPosition returns the cached spawn position, if any.
func (l *Lifecycle) ActivationPosition() (mgl64.Vec3, bool) {
	if l.activation == nil {
		return mgl64.Vec3{}, false
	}
	return l.activation.Position, true
}

// Initialize restores a persisted activation and resets spawn tracking.
func (l *Lifecycle) Initialize(now time.Time) {
	l.closed = false
	l.closeReason = ""
	l.scheduler.Initialize(now)
	l.tracker.Reset()
	l.abandon.Reset()
	l.lateTarget = nil

	if pos, ok := l.deps.Store.TryGet(l.cfg.ID); ok {
		t := geom.Translation(pos)
		l.activation = &t
		l.activated = true
		l.log.Info("activation restored", zap.Float64s("position", pos[:]))
	}
}

// TryActivate commits the boss to its cached position and starts the
// activated phase. It has no effect when already activated or disabled.
func (l *Lifecycle) TryActivate() bool {
	if l.closed {
		return false
	}
	if l.activated {
		l.log.Warn("already activated")
		return false
	}
	if !l.cfg.Enabled {
		l.log.Warn("aborted activation; not enabled")
		return false
	}

	l.activated = true
	meta := telemetry.EventMetadata{}
	if l.activation != nil {
		l.deps.Store.OnActivate(l.cfg.ID, l.activation.Position)
		meta["position"] = l.activation.Position
	}
	l.record(telemetry.EventActivated, meta)
	return true
}

// Update advances the boss by one tick.
func (l *Lifecycle) Update(now time.Time) {
	if l.closed || !l.globallyEnabled() {
		return
	}

	pulse := l.pulse(now)
	if pulse {
		if l.scheduler.Update(now) {
			l.trigger.OnWindow(l)
		}
		l.trigger.Poll(l)
	}

	if l.tracker.State() == spawner.StateSuccess {
		if e := l.tracker.Entity(); e == nil || e.Closed() {
			l.log.Warn("grid deleted by someone else")
			l.Close("deleted externally")
			return
		}
	}

	l.tracker.Update(now)
	if l.tracker.State() == spawner.StateFailure {
		l.onSpawnFailure()
	}

	if !pulse {
		return
	}
	// Pick the would-be position early so it can be advertised before spawning.
	// A live entity is still watched and marked while no position is cached.
	if l.activation == nil {
		l.ResetActivationPosition()
		if l.tracker.Entity() == nil {
			return
		}
	}
	if l.checkAbandoned(now) {
		return
	}
	l.publishMarker()
}

// TrySpawn requests the boss entity. It returns false when the boss is
// disabled, already present, has no room to spawn or the request was refused.
func (l *Lifecycle) TrySpawn() bool {
	if l.closed {
		return false
	}
	if !l.cfg.Enabled {
		l.log.Warn("aborted spawning; not enabled")
		return false
	}
	if l.tracker.Entity() != nil {
		l.log.Warn("aborted spawning; already spawned")
		return false
	}
	if l.tracker.State() == spawner.StateSpawning {
		l.log.Warn("aborted spawning; request in flight")
		return false
	}

	// Not airtight, but catches a boss that already exists in the world.
	if l.adoptExisting() {
		l.log.Warn("aborted spawning; already spawned")
		return false
	}

	sphere := l.cfg.SpawnSphere.Geom()
	if l.activation != nil {
		sphere = geom.NewSphere(l.activation.Position, RespawnRadius)
	}
	target := l.deps.Finder.Find(l.cfg.PlanetSpawn, sphere, l.cfg.ClearanceRadius)
	if target == nil {
		l.log.Warn("failed spawning; no space")
		l.record(telemetry.EventSpawnFailed, telemetry.EventMetadata{"reason": "no_space"})
		return false
	}

	if !l.tracker.RequestSpawn(*target, true) {
		l.log.Warn("failed spawning; spawner rejected the request")
		return false
	}
	l.record(telemetry.EventSpawnRequested, telemetry.EventMetadata{
		"request":  l.tracker.RequestID().String(),
		"group":    l.tracker.Group(),
		"position": target.Position,
	})
	return true
}

// ResetActivationPosition draws a fresh cached position from the spawn
// sphere. The position is persisted only while activated.
func (l *Lifecycle) ResetActivationPosition() bool {
	t := l.deps.Finder.Find(l.cfg.PlanetSpawn, l.cfg.SpawnSphere.Geom(), l.cfg.ClearanceRadius)
	if t == nil {
		l.log.Warn("no activation position found")
		return false
	}
	l.activation = t
	if l.activated {
		l.deps.Store.OnActivate(l.cfg.ID, t.Position)
	}
	l.record(telemetry.EventPositionPicked, telemetry.EventMetadata{"position": t.Position})
	return true
}

// AdoptFromScene takes over the first entity carrying this boss's identity tag.
func (l *Lifecycle) AdoptFromScene(entities []world.Entity) bool {
	return l.adopt(entities)
}

// Close tears the boss down: the entity is destroyed, the marker removed, the
// subscription dropped and the persisted activation cleared. Repeated calls
// are no-ops.
func (l *Lifecycle) Close(reason string) {
	if l.closed {
		return
	}
	l.log.Info("closing boss", zap.String("reason", reason))
	l.closed = true
	l.closeReason = reason

	if e := l.tracker.Entity(); e != nil && !e.Closed() {
		e.Close()
	}
	l.tracker.Close()
	l.deps.Markers.Remove(l.markerID)
	l.markerShown = false
	l.deps.Store.OnInvalidate(l.cfg.ID)
	l.record(telemetry.EventClosed, telemetry.EventMetadata{"reason": reason})
}

// Detach stops managing the boss without touching the world or the persisted
// activation, so a restarted process can pick up where this one left off.
func (l *Lifecycle) Detach() {
	if l.closed {
		return
	}
	l.closed = true
	l.closeReason = "detached"
	l.tracker.Close()
	l.deps.Markers.Remove(l.markerID)
	l.markerShown = false
	l.log.Info("detached")
}

func (l *Lifecycle) globallyEnabled() bool {
	return l.deps.Settings.Enabled == nil || l.deps.Settings.Enabled()
}

func (l *Lifecycle) pulse(now time.Time) bool {
	if !l.lastPulse.IsZero() && now.Sub(l.lastPulse) < pulseInterval {
		return false
	}
	l.lastPulse = now
	return true
}

func (l *Lifecycle) playerEncountered(rangeM float64) bool {
	if !l.activated || l.closed || l.activation == nil {
		return false
	}
	if l.tracker.Entity() != nil || l.tracker.State() == spawner.StateSpawning {
		return false
	}
	players, err := l.deps.World.PlayersInSphere(geom.NewSphere(l.activation.Position, rangeM))
	if err != nil {
		l.log.Warn("player query failed", zap.String("op", "encounter"), zap.Error(err))
		return false
	}
	for _, p := range players {
		if geom.Distance(p.Position, l.activation.Position) < rangeM {
			return true
		}
	}
	return false
}

func (l *Lifecycle) adoptExisting() bool {
	entities, err := l.deps.World.EntitiesInSphere(l.cfg.SpawnSphere.Geom(), world.KindGrid)
	if err != nil {
		l.log.Warn("scene scan failed", zap.String("op", "try_spawn"), zap.Error(err))
		return false
	}
	var near []mgl64.Vec3
	if l.activation != nil {
		near = append(near, l.activation.Position)
	}
	if l.lateTarget != nil {
		near = append(near, *l.lateTarget)
	}
	return l.adopt(entities, near...)
}

// adopt takes the first tagged entity, restricted to MatchTolerance of one of
// near when any are given.
func (l *Lifecycle) adopt(entities []world.Entity, near ...mgl64.Vec3) bool {
	if l.closed || l.tracker.Entity() != nil {
		return false
	}
	for _, e := range entities {
		if !spawner.IsTaggedFor(e, l.cfg.ID) || e.Closed() {
			continue
		}
		if len(near) > 0 && !withinTolerance(e.Position(), near) {
			l.log.Debug("ignoring distant tagged entity", zap.Int64("entity", e.ID()))
			continue
		}
		l.log.Info("initializing with entity in scene", zap.Int64("entity", e.ID()))
		l.adopting = true
		ok := l.tracker.Adopt(e)
		l.adopting = false
		if ok {
			return true
		}
	}
	return false
}

func withinTolerance(p mgl64.Vec3, near []mgl64.Vec3) bool {
	for _, n := range near {
		if geom.Distance(p, n) <= spawner.MatchTolerance {
			return true
		}
	}
	return false
}

func (l *Lifecycle) onSpawned(e world.Entity) {
	e.SetDisplayName(DisplayPrefix + l.cfg.ID)
	l.originalBlocks = e.BlockCount()
	l.abandon.Reset()
	l.lateTarget = nil
	l.deps.Store.OnInvalidate(l.cfg.ID)

	evt := telemetry.EventSpawned
	if l.adopting {
		evt = telemetry.EventAdopted
	}
	l.log.Info("boss entity set",
		zap.Int64("entity", e.ID()),
		zap.Int("blocks", l.originalBlocks),
		zap.Bool("adopted", l.adopting))
	l.record(evt, telemetry.EventMetadata{"entity": e.ID(), "blocks": l.originalBlocks})
}

// onSpawnFailure clears a failed request. The cached position is dropped only
// when something now occupies it.
func (l *Lifecycle) onSpawnFailure() {
	reason := string(l.tracker.Failure())
	if l.tracker.Failure() == spawner.FailureTimeout {
		p := l.tracker.Target().Position
		l.lateTarget = &p
	}
	l.tracker.Reset()

	discarded := false
	if l.activation != nil && l.deps.Finder.IsObstructed(l.activation.Position, l.cfg.ClearanceRadius) {
		l.activation = nil
		discarded = true
	}
	l.log.Warn("spawn failed", zap.String("reason", reason), zap.Bool("position_discarded", discarded))
	l.record(telemetry.EventSpawnFailed, telemetry.EventMetadata{
		"reason":             reason,
		"position_discarded": discarded,
	})
}

// checkAbandoned closes the boss when the abandon policy says so.
func (l *Lifecycle) checkAbandoned(now time.Time) bool {
	e := l.tracker.Entity()
	if e == nil || l.abandonR <= 0 {
		return false
	}
	damaged := !e.Powered() || e.BlockCount() < l.originalBlocks
	if !damaged {
		l.abandon.Observe(now, false)
		return false
	}
	players, err := l.deps.World.PlayersInSphere(geom.NewSphere(e.Position(), l.abandonR))
	if err != nil {
		// An unknown player count never counts as abandonment.
		l.log.Warn("player query failed", zap.String("op", "abandon"), zap.Error(err))
		return false
	}
	if !l.abandon.Observe(now, len(players) == 0) {
		return false
	}
	l.log.Info("boss abandoned",
		zap.String("policy", l.abandon.Name()),
		zap.Int("blocks", e.BlockCount()),
		zap.Int("original_blocks", l.originalBlocks),
		zap.Bool("powered", e.Powered()))
	l.record(telemetry.EventAbandoned, telemetry.EventMetadata{"policy": l.abandon.Name()})
	l.Close("abandoned")
	return true
}

func (l *Lifecycle) record(t telemetry.EventType, meta telemetry.EventMetadata) {
	if err := l.deps.Telemetry.RecordEvent(t, l.cfg.ID, meta); err != nil {
		l.log.Debug("telemetry dropped", zap.String("event", string(t)), zap.Error(err))
	}
}
