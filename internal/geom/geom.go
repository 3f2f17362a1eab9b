// Package geom holds the small amount of 3D math the spawner needs on top of mgl64.
package geom

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"
)

// WorldForward and WorldUp follow the game's right-handed convention.
var (
	WorldForward = mgl64.Vec3{0, 0, -1}
	WorldUp      = mgl64.Vec3{0, 1, 0}
)

type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

func NewSphere(center mgl64.Vec3, radius float64) Sphere {
	return Sphere{Center: center, Radius: radius}
}

func (s Sphere) Contains(p mgl64.Vec3) bool {
	return Distance(s.Center, p) <= s.Radius
}

// Intersects reports whether the two spheres overlap or touch.
func (s Sphere) Intersects(o Sphere) bool {
	return Distance(s.Center, o.Center) <= s.Radius+o.Radius
}

// Transform is a position with an orthonormal orientation.
type Transform struct {
	Position mgl64.Vec3 `json:"position"`
	Forward  mgl64.Vec3 `json:"forward"`
	Up       mgl64.Vec3 `json:"up"`
}

// NewTransform normalizes forward/up. A degenerate forward falls back to a
// direction perpendicular to up.
func NewTransform(position, forward, up mgl64.Vec3) Transform {
	up = safeNormalize(up, WorldUp)
	forward = forward.Sub(up.Mul(forward.Dot(up)))
	if forward.Len() < 1e-9 {
		forward = Perpendicular(up)
	}
	return Transform{Position: position, Forward: forward.Normalize(), Up: up}
}

// Translation returns an identity-oriented transform at p.
func Translation(p mgl64.Vec3) Transform {
	return Transform{Position: p, Forward: WorldForward, Up: WorldUp}
}

// Matrix returns the world matrix (columns: right, up, backward, translation).
func (t Transform) Matrix() mgl64.Mat4 {
	back := t.Forward.Mul(-1)
	right := t.Up.Cross(back).Normalize()
	return mgl64.Mat4{
		right[0], right[1], right[2], 0,
		t.Up[0], t.Up[1], t.Up[2], 0,
		back[0], back[1], back[2], 0,
		t.Position[0], t.Position[1], t.Position[2], 1,
	}
}

func Distance(a, b mgl64.Vec3) float64 {
	return a.Sub(b).Len()
}

// Perpendicular returns some unit vector orthogonal to v.
func Perpendicular(v mgl64.Vec3) mgl64.Vec3 {
	axis := WorldForward
	if math.Abs(v.Normalize().Dot(axis)) > 0.99 {
		axis = WorldUp
	}
	return v.Cross(axis).Normalize()
}

// RandomPointInSphere draws a point uniformly distributed inside s.
func RandomPointInSphere(rng *rand.Rand, s Sphere) mgl64.Vec3 {
	dir := RandomDirection(rng)
	r := s.Radius * math.Cbrt(rng.Float64())
	return s.Center.Add(dir.Mul(r))
}

// RandomDirection draws a uniformly distributed unit vector.
func RandomDirection(rng *rand.Rand) mgl64.Vec3 {
	z := 2*rng.Float64() - 1
	theta := 2 * math.Pi * rng.Float64()
	r := math.Sqrt(1 - z*z)
	return mgl64.Vec3{r * math.Cos(theta), r * math.Sin(theta), z}
}

// PositiveMod is a modulo that never returns a negative result.
func PositiveMod(a, n float64) float64 {
	return math.Mod(math.Mod(a, n)+n, n)
}

func safeNormalize(v, fallback mgl64.Vec3) mgl64.Vec3 {
	if v.Len() < 1e-9 {
		return fallback
	}
	return v.Normalize()
}
