// Package registry owns every boss lifecycle built from one config and fans
// the tick out to them.
//
// Like the lifecycles it holds, a Registry is driven from a single goroutine;
// other goroutines reach it through game.Loop.Do.
package registry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"bossspawner/internal/activation"
	"bossspawner/internal/boss"
	"bossspawner/internal/config"
	"bossspawner/internal/game"
	"bossspawner/internal/geom"
	"bossspawner/internal/marker"
	"bossspawner/internal/position"
	"bossspawner/internal/spawner"
	"bossspawner/internal/telemetry"
	"bossspawner/internal/world"
)

var (
	ErrUnknownBoss = errors.New("unknown boss")
	ErrNoLoader    = errors.New("no config loader")
)

type Deps struct {
	World   world.Querier
	Spawner spawner.Service
	Markers marker.Channel
	Store   *activation.Store
	// Finder replaces the position finder built from the config's voids.
	Finder    boss.PositionFinder
	Clock     game.Clock
	Rand      *rand.Rand
	Logger    *zap.Logger
	Telemetry telemetry.Recorder
	// Loader rereads the config for Reload.
	Loader func() (*config.Config, error)
}

type Registry struct {
	deps Deps
	log  *zap.Logger

	cfg     *config.Config
	enabled bool
	bosses  []*boss.Lifecycle
	scan    bool
}

func New(cfg *config.Config, deps Deps) (*Registry, error) {
	var errs []error
	if deps.World == nil {
		errs = append(errs, errors.New("world is required"))
	}
	if deps.Spawner == nil {
		errs = append(errs, errors.New("spawner is required"))
	}
	if deps.Store == nil {
		errs = append(errs, errors.New("activation store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
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

	r := &Registry{deps: deps, log: deps.Logger.Named("registry")}
	bosses, err := r.build(cfg)
	if err != nil {
		return nil, err
	}
	r.install(cfg, bosses)
	return r, nil
}

// Config returns the config the current lifecycles were built from.
func (r *Registry) Config() *config.Config { return r.cfg }

func (r *Registry) Enabled() bool { return r.enabled }

// SetEnabled flips the global switch until the next reload.
func (r *Registry) SetEnabled(on bool) {
	if r.enabled == on {
		return
	}
	r.enabled = on
	r.log.Info("spawner toggled", zap.Bool("enabled", on))
}

// Update ticks every boss and drains the activation store.
func (r *Registry) Update(now time.Time) {
	defer r.flush()
	if !r.enabled {
		return
	}

	if r.scan {
		r.scan = false
		r.adoptFromScene()
	}

	for i, l := range r.bosses {
		r.updateOne(l, now)
		if l.Closed() {
			r.bosses[i] = r.rebuild(l, now)
		}
	}
}

// ReloadConfig validates cfg and, only if it is valid, replaces every boss.
// Existing boss entities are destroyed.
func (r *Registry) ReloadConfig(cfg *config.Config) error {
	bosses, err := r.build(cfg)
	if err != nil {
		r.log.Warn("config rejected; keeping current bosses", zap.Error(err))
		return err
	}
	for _, l := range r.bosses {
		l.Close("reload")
	}
	r.install(cfg, bosses)
	r.flush()

	r.log.Info("config reloaded", zap.Int("bosses", len(bosses)))
	if err := r.deps.Telemetry.RecordEvent(telemetry.EventConfigReloaded, "", telemetry.EventMetadata{
		"bosses": len(bosses),
	}); err != nil {
		r.log.Debug("telemetry dropped", zap.Error(err))
	}
	return nil
}

// Reload rereads the config through the injected loader.
func (r *Registry) Reload() error {
	if r.deps.Loader == nil {
		return ErrNoLoader
	}
	cfg, err := r.deps.Loader()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return r.ReloadConfig(cfg)
}

// Spawn asks the boss to spawn now, bypassing its trigger.
func (r *Registry) Spawn(id string) (bool, error) {
	l, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	return l.TrySpawn(), nil
}

// Despawn destroys the boss entity and clears its activation. The lifecycle
// is rebuilt on the next tick.
func (r *Registry) Despawn(id string) error {
	l, err := r.lookup(id)
	if err != nil {
		return err
	}
	l.Close("despawn")
	return nil
}

// ResetPosition draws a new activation position for the boss.
func (r *Registry) ResetPosition(id string) (bool, error) {
	l, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	return l.ResetActivationPosition(), nil
}

// Activate forces the boss into its activated phase.
func (r *Registry) Activate(id string) (bool, error) {
	l, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	return l.TryActivate(), nil
}

func (r *Registry) Status() []boss.Status {
	out := make([]boss.Status, 0, len(r.bosses))
	for _, l := range r.bosses {
		out = append(out, l.Status())
	}
	return out
}

func (r *Registry) BossStatus(id string) (boss.Status, error) {
	l, err := r.lookup(id)
	if err != nil {
		return boss.Status{}, err
	}
	return l.Status(), nil
}

// Shutdown detaches every boss so entities and activations survive a restart.
func (r *Registry) Shutdown() {
	for _, l := range r.bosses {
		l.Detach()
	}
	r.flush()
	r.log.Info("registry shut down", zap.Int("bosses", len(r.bosses)))
}

func (r *Registry) lookup(id string) (*boss.Lifecycle, error) {
	for _, l := range r.bosses {
		if l.ID() == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBoss, id)
}

func (r *Registry) build(cfg *config.Config) ([]*boss.Lifecycle, error) {
	if cfg == nil {
		return nil, errors.New("registry: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	color, err := marker.ParseColor(cfg.Marker.Color)
	if err != nil {
		return nil, fmt.Errorf("invalid config: marker.color: %w", err)
	}

	finder := r.deps.Finder
	if finder == nil {
		voids := make([]geom.Sphere, 0, len(cfg.SpawnVoids))
		for _, v := range cfg.SpawnVoids {
			voids = append(voids, v.Geom())
		}
		finder = position.NewFinder(r.deps.World, r.deps.Rand, position.Options{
			Voids:        voids,
			VoidMargin:   cfg.VoidMarginOr(position.DefaultVoidMargin),
			AvoidGravity: cfg.AvoidGravity,
		}, r.deps.Logger)
	}

	settings := boss.Settings{
		Enabled:        r.Enabled,
		EncounterRange: cfg.EncounterRange,
		TriggerMode:    cfg.TriggerMode,
		Abandon:        cfg.Abandon,
		Marker: boss.MarkerStyle{
			Color:         color,
			DecaySeconds:  cfg.Marker.DecaySeconds,
			SuppressSound: cfg.Marker.SuppressSound,
		},
	}
	deps := boss.Deps{
		World:     r.deps.World,
		Spawner:   r.deps.Spawner,
		Markers:   r.deps.Markers,
		Store:     r.deps.Store,
		Finder:    finder,
		Clock:     r.deps.Clock,
		Rand:      r.deps.Rand,
		Logger:    r.deps.Logger,
		Telemetry: r.deps.Telemetry,
		Settings:  settings,
	}

	bosses := make([]*boss.Lifecycle, 0, len(cfg.Bosses))
	for _, bc := range cfg.Bosses {
		l, err := boss.New(bc, deps)
		if err != nil {
			return nil, err
		}
		bosses = append(bosses, l)
	}
	return bosses, nil
}

func (r *Registry) install(cfg *config.Config, bosses []*boss.Lifecycle) {
	now := r.deps.Clock.Now()
	for _, l := range bosses {
		l.Initialize(now)
		r.log.Info("boss loaded", zap.String("boss", l.ID()), zap.Stringer("config", l.Config()))
	}
	r.cfg = cfg
	r.enabled = cfg.IsEnabled()
	r.bosses = bosses
	r.scan = true
}

// adoptFromScene reattaches entities spawned by a previous process.
func (r *Registry) adoptFromScene() {
	for _, l := range r.bosses {
		cfg := l.Config()
		entities, err := r.deps.World.EntitiesInSphere(cfg.SpawnSphere.Geom(), world.KindGrid)
		if err != nil {
			r.log.Warn("scene scan failed", zap.String("boss", cfg.ID), zap.String("op", "adopt"), zap.Error(err))
			continue
		}
		l.AdoptFromScene(entities)
	}
}

func (r *Registry) updateOne(l *boss.Lifecycle, now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("boss update panicked",
				zap.String("boss", l.ID()),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			l.Close("panic")
		}
	}()
	l.Update(now)
}

// rebuild swaps a closed lifecycle for a fresh one with the same config.
func (r *Registry) rebuild(old *boss.Lifecycle, now time.Time) *boss.Lifecycle {
	fresh, err := boss.New(old.Config(), old.Deps())
	if err != nil {
		r.log.Error("boss rebuild failed", zap.String("boss", old.ID()), zap.Error(err))
		return old
	}
	fresh.Initialize(now)
	r.log.Info("boss rebuilt", zap.String("boss", old.ID()), zap.String("reason", old.Status().CloseReason))
	return fresh
}

func (r *Registry) flush() {
	if err := r.deps.Store.Flush(); err != nil {
		r.log.Warn("activation flush failed", zap.Error(err))
	}
}
