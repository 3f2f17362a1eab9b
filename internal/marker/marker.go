// Package marker publishes map markers for bosses: a countdown at the spawn
// location while a boss is pending and a tracker on the live grid afterwards.
package marker

import (
	"fmt"
	"hash/fnv"
	"image/color"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/colornames"
)

const DefaultDecaySeconds = 5.0

var DefaultColor = colornames.Orange

type Marker struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Position      mgl64.Vec3 `json:"position"`
	Color         color.RGBA `json:"color"`
	Radius        float64    `json:"radius"`
	DecaySeconds  float64    `json:"decay_seconds"`
	SuppressSound bool       `json:"suppress_sound"`
}

// Channel delivers markers to players. Upsert replaces any marker with the
// same id.
type Channel interface {
	Upsert(m Marker)
	Remove(id int64)
}

// IDFor derives a stable marker id from a key such as a boss id.
func IDFor(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// ParseColor accepts an SVG colour name ("orange") or a hex triplet ("#ff8800").
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultColor, nil
	}
	if c, ok := colornames.Map[s]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("unknown colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("unknown colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Memory keeps the latest marker per id.
type Memory struct {
	mu      sync.RWMutex
	markers map[int64]Marker
}

func NewMemory() *Memory {
	return &Memory{markers: map[int64]Marker{}}
}

func (m *Memory) Upsert(mk Marker) {
	m.mu.Lock()
	m.markers[mk.ID] = mk
	m.mu.Unlock()
}

func (m *Memory) Remove(id int64) {
	m.mu.Lock()
	delete(m.markers, id)
	m.mu.Unlock()
}

func (m *Memory) Get(id int64) (Marker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mk, ok := m.markers[id]
	return mk, ok
}

// All returns markers sorted by name.
func (m *Memory) All() []Marker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Marker, 0, len(m.markers))
	for _, mk := range m.markers {
		out = append(out, mk)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.markers)
}

// Fanout forwards to every channel in order.
type Fanout []Channel

func (f Fanout) Upsert(m Marker) {
	for _, c := range f {
		c.Upsert(m)
	}
}

func (f Fanout) Remove(id int64) {
	for _, c := range f {
		c.Remove(id)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Upsert(Marker) {}
func (Discard) Remove(int64)  {}
