package spawner

import (
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"bossspawner/internal/world"
)

// DefaultSimulatedBlocks is the block count given to simulated grids.
const DefaultSimulatedBlocks = 120

// Simulator is a Service backed by a world.Memory. Accepted requests are
// materialized on the next Update, which mirrors the asynchronous behaviour
// of a real spawning facility.
type Simulator struct {
	world *world.Memory
	log   *zap.Logger

	mu        sync.Mutex
	nextSub   SubscriptionID
	subs      map[SubscriptionID]Listener
	pending   []Request
	history   []Request
	protected map[int64]bool

	reject       bool
	drop         bool
	offset       mgl64.Vec3
	protectFails int
	blocks       int
}

func NewSimulator(w *world.Memory, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		world:     w,
		log:       logger.Named("spawner"),
		subs:      map[SubscriptionID]Listener{},
		protected: map[int64]bool{},
		blocks:    DefaultSimulatedBlocks,
	}
}

// SetReject makes RequestSpawn refuse every request.
func (s *Simulator) SetReject(v bool) {
	s.mu.Lock()
	s.reject = v
	s.mu.Unlock()
}

// SetDrop makes accepted requests vanish without ever spawning.
func (s *Simulator) SetDrop(v bool) {
	s.mu.Lock()
	s.drop = v
	s.mu.Unlock()
}

// SetOffset displaces spawned entities from their requested position.
func (s *Simulator) SetOffset(v mgl64.Vec3) {
	s.mu.Lock()
	s.offset = v
	s.mu.Unlock()
}

// FailProtection makes the next n MarkProtectedFromCleanup calls fail.
func (s *Simulator) FailProtection(n int) {
	s.mu.Lock()
	s.protectFails = n
	s.mu.Unlock()
}

func (s *Simulator) SetBlocks(n int) {
	s.mu.Lock()
	s.blocks = n
	s.mu.Unlock()
}

func (s *Simulator) RequestSpawn(req Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, req)
	if s.reject {
		s.log.Debug("request rejected", zap.String("context", req.Context))
		return false
	}
	if !s.drop {
		s.pending = append(s.pending, req)
	}
	return true
}

func (s *Simulator) Subscribe(fn Listener) SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	s.subs[s.nextSub] = fn
	return s.nextSub
}

func (s *Simulator) Unsubscribe(id SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *Simulator) MarkProtectedFromCleanup(e world.Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.protectFails > 0 {
		s.protectFails--
		return false
	}
	s.protected[e.ID()] = true
	return true
}

// Update spawns everything requested since the previous call.
func (s *Simulator) Update(time.Time) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	offset, blocks := s.offset, s.blocks
	s.mu.Unlock()

	for _, req := range pending {
		name := "grid"
		if len(req.SpawnGroups) > 0 {
			name = req.SpawnGroups[0]
		}
		e := s.world.Spawn(world.KindGrid, name, req.Target.Position.Add(offset), blocks)
		if req.Context != "" {
			e.SetTag(InstanceTagKey, req.Context)
		}
		s.log.Debug("spawned", zap.Int64("entity", e.ID()), zap.String("context", req.Context))
		for _, fn := range s.listeners() {
			fn(e)
		}
	}
}

// Subscribers reports how many listeners are registered.
func (s *Simulator) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Simulator) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.history...)
}

func (s *Simulator) IsProtected(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protected[id]
}

// listeners snapshots subscribers in subscription order so callbacks may
// unsubscribe themselves.
func (s *Simulator) listeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]SubscriptionID, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}
