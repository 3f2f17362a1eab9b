package world

import (
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"bossspawner/internal/geom"
)

// Memory is an in-process world. It is safe for concurrent use, although the
// spawner itself only touches it from the tick goroutine.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	entities map[int64]*MemoryEntity
	planets  []*SpherePlanet
	players  map[string]Player
	queryErr error
}

func NewMemory() *Memory {
	return &Memory{
		entities: map[int64]*MemoryEntity{},
		players:  map[string]Player{},
	}
}

// Spawn places a new entity into the world.
func (w *Memory) Spawn(kind Kind, name string, pos mgl64.Vec3, blocks int) *MemoryEntity {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	e := &MemoryEntity{
		world:   w,
		id:      w.nextID,
		kind:    kind,
		name:    name,
		pos:     pos,
		blocks:  blocks,
		powered: true,
		tags:    map[string]string{},
	}
	w.entities[e.id] = e
	return e
}

func (w *Memory) AddPlanet(p *SpherePlanet) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.planets = append(w.planets, p)
}

func (w *Memory) SetPlayer(p Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.players[p.ID] = p
}

func (w *Memory) RemovePlayer(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.players, id)
}

// FailQueries makes entity and player queries return err until called with nil.
func (w *Memory) FailQueries(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queryErr = err
}

// Entities lists live entities ordered by id.
func (w *Memory) Entities() []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (w *Memory) Entity(id int64) (*MemoryEntity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[id]
	return e, ok
}

func (w *Memory) EntitiesInSphere(s geom.Sphere, kind Kind) ([]Entity, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.queryErr != nil {
		return nil, w.queryErr
	}
	out := []Entity{}
	for _, e := range w.entities {
		if kind != KindAny && e.kind != kind {
			continue
		}
		if s.Contains(e.Position()) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (w *Memory) ClosestPlanet(p mgl64.Vec3) (Planet, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var best *SpherePlanet
	bestDist := math.MaxFloat64
	for _, pl := range w.planets {
		if d := geom.Distance(pl.CenterPos, p); d < bestDist {
			best, bestDist = pl, d
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func (w *Memory) PlayersInSphere(s geom.Sphere) ([]Player, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.queryErr != nil {
		return nil, w.queryErr
	}
	out := []Player{}
	for _, p := range w.players {
		if p.HasCharacter && s.Contains(p.Position) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (w *Memory) HasNaturalGravity(p mgl64.Vec3) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, pl := range w.planets {
		if geom.Distance(pl.CenterPos, p) <= pl.GravityRadius() {
			return true
		}
	}
	return false
}

func (w *Memory) remove(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entities, id)
}

type MemoryEntity struct {
	world *Memory

	mu      sync.RWMutex
	id      int64
	kind    Kind
	name    string
	pos     mgl64.Vec3
	blocks  int
	powered bool
	closed  bool
	tags    map[string]string
}

func (e *MemoryEntity) ID() int64  { return e.id }
func (e *MemoryEntity) Kind() Kind { return e.kind }

func (e *MemoryEntity) Position() mgl64.Vec3 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pos
}

func (e *MemoryEntity) SetPosition(p mgl64.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = p
}

func (e *MemoryEntity) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *MemoryEntity) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.world.remove(e.id)
}

func (e *MemoryEntity) Tag(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.tags[key]
	return v, ok
}

func (e *MemoryEntity) SetTag(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tags[key] = value
}

func (e *MemoryEntity) BlockCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.blocks
}

// Damage removes n blocks, never going below zero.
func (e *MemoryEntity) Damage(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blocks = max(0, e.blocks-n)
}

func (e *MemoryEntity) Powered() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.powered
}

func (e *MemoryEntity) SetPowered(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.powered = on
}

func (e *MemoryEntity) DisplayName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.name
}

func (e *MemoryEntity) SetDisplayName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = name
}

// SpherePlanet is a perfectly round planet. Flat may be set to model rough terrain.
type SpherePlanet struct {
	PlanetName string
	CenterPos  mgl64.Vec3
	Radius     float64
	// GravityReach is how far above the surface natural gravity extends, as a
	// fraction of Radius. Zero means 1.
	GravityReach float64
	Flat         func(point mgl64.Vec3, probeRadius, tolerance float64) bool
}

func (p *SpherePlanet) Name() string           { return p.PlanetName }
func (p *SpherePlanet) Center() mgl64.Vec3     { return p.CenterPos }
func (p *SpherePlanet) AverageRadius() float64 { return p.Radius }

func (p *SpherePlanet) ClosestSurfacePoint(q mgl64.Vec3) mgl64.Vec3 {
	dir := q.Sub(p.CenterPos)
	if dir.Len() < 1e-9 {
		dir = geom.WorldUp
	}
	return p.CenterPos.Add(dir.Normalize().Mul(p.Radius))
}

func (p *SpherePlanet) IsFlat(point mgl64.Vec3, probeRadius, tolerance float64) bool {
	if p.Flat == nil {
		return true
	}
	return p.Flat(point, probeRadius, tolerance)
}

func (p *SpherePlanet) GravityRadius() float64 {
	reach := p.GravityReach
	if reach <= 0 {
		reach = 1
	}
	return p.Radius * (1 + reach)
}
