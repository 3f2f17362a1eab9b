// Package activation remembers which bosses have committed to a spawn
// position, so a countdown survives a process restart.
package activation

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"
)

// StorageKey names the blob holding all activations.
const StorageKey = "boss_activations"

// Store is a boss id to position map with deferred write-back: mutations only
// set a dirty flag and Flush serializes the whole map at most once per call.
type Store struct {
	backend Backend
	log     *zap.Logger

	mu        sync.Mutex
	positions map[string]mgl64.Vec3
	dirty     bool
}

func NewStore(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:   backend,
		log:       logger.Named("activation"),
		positions: map[string]mgl64.Vec3{},
	}
}

// Load replaces the in-memory map with the stored one. A missing blob is an
// empty store.
func (s *Store) Load() error {
	data, ok, err := s.backend.Load(StorageKey)
	if err != nil {
		return fmt.Errorf("load activations: %w", err)
	}
	loaded := map[string]mgl64.Vec3{}
	if ok && len(data) > 0 {
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("decode activations: %w", err)
		}
	}
	s.mu.Lock()
	s.positions = loaded
	s.dirty = false
	s.mu.Unlock()
	s.log.Info("activations loaded", zap.Int("count", len(loaded)))
	return nil
}

func (s *Store) OnActivate(bossID string, pos mgl64.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.positions[bossID]; ok && cur == pos {
		return
	}
	s.positions[bossID] = pos
	s.dirty = true
}

func (s *Store) OnInvalidate(bossID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[bossID]; !ok {
		return
	}
	delete(s.positions, bossID)
	s.dirty = true
}

func (s *Store) TryGet(bossID string) (mgl64.Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[bossID]
	return p, ok
}

// Flush writes the map if anything changed since the last successful write.
// On failure the store stays dirty and the next Flush retries.
func (s *Store) Flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(s.positions)
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode activations: %w", err)
	}

	if err := s.backend.Save(StorageKey, data); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("save activations: %w", err)
	}
	return nil
}

func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

// IDs lists activated boss ids in order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.positions))
	for id := range s.positions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
