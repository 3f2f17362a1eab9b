package telemetry

import (
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Repository stores telemetry events
type Repository interface {
	Recorder
	GetEvents(since time.Time, eventTypes []EventType) ([]Event, error)
	Clear() error
}

// MemoryRepository keeps the most recent events in memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	events  []Event
	limit   int
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

// NewMemoryRepository keeps at most limit events; limit <= 0 means 10000.
func NewMemoryRepository(limit int, now func() time.Time) *MemoryRepository {
	if limit <= 0 {
		limit = 10000
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		events:  make([]Event, 0),
		limit:   limit,
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (r *MemoryRepository) RecordEvent(eventType EventType, bossID string, metadata EventMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	ts := r.now()
	id, err := ulid.New(ulid.Timestamp(ts), r.entropy)
	if err != nil {
		return err
	}

	r.events = append(r.events, Event{
		ID:        id,
		Type:      eventType,
		BossID:    bossID,
		Timestamp: ts,
		Metadata:  string(metadataJSON),
	})
	if over := len(r.events) - r.limit; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}

	return nil
}

func (r *MemoryRepository) GetEvents(since time.Time, eventTypes []EventType) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typeFilter := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeFilter[t] = true
	}

	result := make([]Event, 0)
	for _, event := range r.events {
		if event.Timestamp.Before(since) {
			continue
		}
		if len(eventTypes) > 0 && !typeFilter[event.Type] {
			continue
		}
		result = append(result, event)
	}

	return result, nil
}

func (r *MemoryRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make([]Event, 0)
	return nil
}
