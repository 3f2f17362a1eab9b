// Package position searches the world for places a boss can be spawned.
//
// Every search is a bounded loop of random draws; an exhausted search
// returns nil and the caller defers to its next trigger.
package position

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"bossspawner/internal/geom"
	"bossspawner/internal/world"
)

const (
	DefaultAttempts   = 100
	DefaultVoidMargin = 10000

	flatProbeRadius = 20
	flatTolerance   = 2
)

type Options struct {
	// Voids are exclusion spheres no spawn may touch.
	Voids []geom.Sphere
	// VoidMargin is the radius around a candidate that must stay clear of voids.
	VoidMargin float64
	// AvoidGravity rejects open-space candidates inside a natural gravity well.
	AvoidGravity bool
	Attempts     int
}

type Finder struct {
	world world.Querier
	rng   *rand.Rand
	opts  Options
	log   *zap.Logger
}

func NewFinder(w world.Querier, rng *rand.Rand, opts Options, logger *zap.Logger) *Finder {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.VoidMargin < 0 {
		opts.VoidMargin = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Finder{world: w, rng: rng, opts: opts, log: logger.Named("position")}
}

// Find dispatches to the planet or open-space search.
func (f *Finder) Find(onPlanet bool, sphere geom.Sphere, clearance float64) *geom.Transform {
	if onPlanet {
		return f.FindPlanetSurface(sphere, clearance)
	}
	return f.FindSpace(sphere, clearance)
}

func (f *Finder) FindSpace(sphere geom.Sphere, clearance float64) *geom.Transform {
	for i := 0; i < f.opts.Attempts; i++ {
		p := geom.RandomPointInSphere(f.rng, sphere)
		if !f.isClear(p, clearance, world.KindAny) {
			continue
		}
		if f.InVoid(p) {
			continue
		}
		if f.opts.AvoidGravity && f.world.HasNaturalGravity(p) {
			continue
		}
		t := geom.NewTransform(p, geom.WorldForward, geom.WorldUp)
		return &t
	}

	f.log.Debug("space search exhausted",
		zap.Float64s("center", sphere.Center[:]),
		zap.Float64("radius", sphere.Radius),
		zap.Int("attempts", f.opts.Attempts))
	return nil
}

func (f *Finder) FindPlanetSurface(sphere geom.Sphere, clearance float64) *geom.Transform {
	planet, ok := f.world.ClosestPlanet(geom.RandomPointInSphere(f.rng, sphere))
	if !ok {
		f.log.Warn("planet search aborted; no planet in world")
		return nil
	}

	bounds := geom.NewSphere(planet.Center(), planet.AverageRadius())
	for i := 0; i < f.opts.Attempts; i++ {
		p := geom.RandomPointInSphere(f.rng, bounds)
		surface := planet.ClosestSurfacePoint(p)
		if !planet.IsFlat(surface, flatProbeRadius, flatTolerance) {
			continue
		}
		if !f.isClear(surface, clearance, world.KindGrid) {
			continue
		}
		if f.InVoid(surface) {
			continue
		}

		normal := surface.Sub(planet.Center())
		if normal.Len() < 1e-9 {
			continue
		}
		normal = normal.Normalize()
		forward := normal.Cross(geom.WorldForward).Cross(normal)
		t := geom.NewTransform(surface, forward, normal)
		return &t
	}

	f.log.Debug("planet search exhausted",
		zap.String("planet", planet.Name()),
		zap.Int("attempts", f.opts.Attempts))
	return nil
}

// InVoid reports whether the margin sphere around p touches any spawn void.
func (f *Finder) InVoid(p mgl64.Vec3) bool {
	probe := geom.NewSphere(p, f.opts.VoidMargin)
	for _, v := range f.opts.Voids {
		if probe.Intersects(v) {
			return true
		}
	}
	return false
}

// IsObstructed reports whether anything sits within clearance of p.
func (f *Finder) IsObstructed(p mgl64.Vec3, clearance float64) bool {
	return !f.isClear(p, clearance, world.KindAny)
}

func (f *Finder) isClear(p mgl64.Vec3, clearance float64, kind world.Kind) bool {
	if clearance <= 0 {
		return true
	}
	found, err := f.world.EntitiesInSphere(geom.NewSphere(p, clearance), kind)
	if err != nil {
		f.log.Warn("clearance query failed; treating as empty", zap.Error(err))
		return true
	}
	return len(found) == 0
}
