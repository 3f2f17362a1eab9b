package geom

import (
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestPositiveMod(t *testing.T) {
	assert.InDelta(t, 1.0, PositiveMod(-23, 24), 1e-9)
	assert.InDelta(t, 3.0, PositiveMod(27, 24), 1e-9)
	assert.Equal(t, 0.0, PositiveMod(0, 24))
	assert.Equal(t, 0.0, PositiveMod(-48, 24))

	got := PositiveMod(-1e-18, 24)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.Less(t, got, 24.0)
}

func TestRandomPointInSphere_StaysInside(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s := NewSphere(mgl64.Vec3{100, -50, 20}, 300)
	for i := 0; i < 1000; i++ {
		p := RandomPointInSphere(rng, s)
		assert.True(t, s.Contains(p), "point %v outside sphere", p)
	}
}

func TestNewTransform_Orthonormal(t *testing.T) {
	tr := NewTransform(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{0, 1, -1}, mgl64.Vec3{0, 2, 0})

	assert.InDelta(t, 1.0, tr.Up.Len(), 1e-9)
	assert.InDelta(t, 1.0, tr.Forward.Len(), 1e-9)
	assert.InDelta(t, 0.0, tr.Up.Dot(tr.Forward), 1e-9)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, tr.Matrix().Col(3).Vec3())
}

func TestNewTransform_DegenerateForward(t *testing.T) {
	tr := NewTransform(mgl64.Vec3{}, WorldUp, WorldUp)
	assert.InDelta(t, 1.0, tr.Forward.Len(), 1e-9)
	assert.InDelta(t, 0.0, tr.Up.Dot(tr.Forward), 1e-9)
}

func TestSphereIntersects(t *testing.T) {
	a := NewSphere(mgl64.Vec3{0, 0, 0}, 10)
	assert.True(t, a.Intersects(NewSphere(mgl64.Vec3{15, 0, 0}, 5)))
	assert.False(t, a.Intersects(NewSphere(mgl64.Vec3{16, 0, 0}, 5)))
}
