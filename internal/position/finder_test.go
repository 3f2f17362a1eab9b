package position

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bossspawner/internal/geom"
	"bossspawner/internal/world"
)

func newFinder(w world.Querier, opts Options) *Finder {
	return NewFinder(w, rand.New(rand.NewPCG(7, 11)), opts, nil)
}

func TestFindSpace_ReturnsPointInsideSphere(t *testing.T) {
	w := world.NewMemory()
	f := newFinder(w, Options{})
	sphere := geom.NewSphere(mgl64.Vec3{1000, 0, 0}, 500)

	got := f.FindSpace(sphere, 10)
	require.NotNil(t, got)
	assert.True(t, sphere.Contains(got.Position))
	assert.Equal(t, geom.WorldUp, got.Up)
}

func TestFindSpace_NeverReturnsPointInVoid(t *testing.T) {
	w := world.NewMemory()
	voids := []geom.Sphere{
		geom.NewSphere(mgl64.Vec3{0, 0, 0}, 300),
		geom.NewSphere(mgl64.Vec3{600, 0, 0}, 200),
	}
	f := newFinder(w, Options{Voids: voids, VoidMargin: 50})
	sphere := geom.NewSphere(mgl64.Vec3{300, 0, 0}, 1000)

	for i := 0; i < 200; i++ {
		got := f.FindSpace(sphere, 0)
		if got == nil {
			continue
		}
		for _, v := range voids {
			assert.Greater(t, geom.Distance(got.Position, v.Center), v.Radius+50)
		}
	}
}

func TestFindSpace_VoidCoveringVolumeExhausts(t *testing.T) {
	w := world.NewMemory()
	f := newFinder(w, Options{
		Voids:      []geom.Sphere{geom.NewSphere(mgl64.Vec3{}, 1e6)},
		VoidMargin: 0,
	})

	assert.Nil(t, f.FindSpace(geom.NewSphere(mgl64.Vec3{}, 1000), 0))
}

func TestFindSpace_RespectsClearance(t *testing.T) {
	w := world.NewMemory()
	w.Spawn(world.KindGrid, "station", mgl64.Vec3{}, 100)
	f := newFinder(w, Options{})

	assert.Nil(t, f.FindSpace(geom.NewSphere(mgl64.Vec3{}, 100), 1000))

	got := f.FindSpace(geom.NewSphere(mgl64.Vec3{5000, 0, 0}, 100), 1000)
	require.NotNil(t, got)
	assert.Greater(t, geom.Distance(got.Position, mgl64.Vec3{}), 1000.0)
}

func TestFindSpace_QueryErrorTreatedAsEmpty(t *testing.T) {
	w := world.NewMemory()
	w.Spawn(world.KindGrid, "station", mgl64.Vec3{}, 100)
	w.FailQueries(errors.New("iteration failed"))
	f := newFinder(w, Options{})

	assert.NotNil(t, f.FindSpace(geom.NewSphere(mgl64.Vec3{}, 100), 1000))
}

func TestFindSpace_AvoidGravity(t *testing.T) {
	w := world.NewMemory()
	w.AddPlanet(&world.SpherePlanet{PlanetName: "earthlike", Radius: 60000})
	f := newFinder(w, Options{AvoidGravity: true})

	assert.Nil(t, f.FindSpace(geom.NewSphere(mgl64.Vec3{}, 1000), 0))
	assert.NotNil(t, f.FindSpace(geom.NewSphere(mgl64.Vec3{500000, 0, 0}, 1000), 0))
}

func TestFindPlanetSurface_NoPlanet(t *testing.T) {
	f := newFinder(world.NewMemory(), Options{})
	assert.Nil(t, f.FindPlanetSurface(geom.NewSphere(mgl64.Vec3{}, 1000), 10))
}

func TestFindPlanetSurface_OrientsUpAlongNormal(t *testing.T) {
	w := world.NewMemory()
	center := mgl64.Vec3{10000, 0, 0}
	w.AddPlanet(&world.SpherePlanet{PlanetName: "moon", CenterPos: center, Radius: 2000})
	f := newFinder(w, Options{})

	got := f.FindPlanetSurface(geom.NewSphere(mgl64.Vec3{}, 100), 50)
	require.NotNil(t, got)

	assert.InDelta(t, 2000, geom.Distance(got.Position, center), 1e-6)
	normal := got.Position.Sub(center).Normalize()
	assert.InDelta(t, 1.0, got.Up.Dot(normal), 1e-9)
	assert.InDelta(t, 0.0, got.Forward.Dot(got.Up), 1e-9)
	assert.InDelta(t, 1.0, got.Forward.Len(), 1e-9)
}

func TestFindPlanetSurface_RoughTerrainExhausts(t *testing.T) {
	w := world.NewMemory()
	w.AddPlanet(&world.SpherePlanet{
		PlanetName: "crags",
		Radius:     2000,
		Flat:       func(mgl64.Vec3, float64, float64) bool { return false },
	})
	f := newFinder(w, Options{})

	assert.Nil(t, f.FindPlanetSurface(geom.NewSphere(mgl64.Vec3{}, 100), 50))
}

func TestFindPlanetSurface_AvoidsGrids(t *testing.T) {
	w := world.NewMemory()
	w.AddPlanet(&world.SpherePlanet{PlanetName: "small", Radius: 100})
	w.Spawn(world.KindGrid, "base", mgl64.Vec3{}, 10)
	f := newFinder(w, Options{})

	// every surface point is within 1000 of the base at the core
	assert.Nil(t, f.FindPlanetSurface(geom.NewSphere(mgl64.Vec3{}, 10), 1000))
}
