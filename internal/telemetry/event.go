package telemetry

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	EventActivated      EventType = "boss_activated"
	EventPositionPicked EventType = "position_picked"
	EventSpawnRequested EventType = "spawn_requested"
	EventSpawned        EventType = "boss_spawned"
	EventSpawnFailed    EventType = "spawn_failed"
	EventAdopted        EventType = "boss_adopted"
	EventAbandoned      EventType = "boss_abandoned"
	EventClosed         EventType = "boss_closed"
	EventConfigReloaded EventType = "config_reloaded"
)

type Event struct {
	ID        ulid.ULID `json:"id"`
	Type      EventType `json:"type"`
	BossID    string    `json:"boss_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  string    `json:"metadata"`
}

type EventMetadata map[string]interface{}

// Recorder is the write side used by the spawner core.
type Recorder interface {
	RecordEvent(eventType EventType, bossID string, metadata EventMetadata) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) RecordEvent(EventType, string, EventMetadata) error { return nil }
