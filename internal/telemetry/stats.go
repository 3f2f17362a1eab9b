package telemetry

import (
	"encoding/json"
	"time"
)

type BossStats struct {
	Activations  int `json:"activations"`
	SpawnRequest int `json:"spawn_requests"`
	Spawns       int `json:"spawns"`
	Failures     int `json:"failures"`
	Adoptions    int `json:"adoptions"`
	Abandons     int `json:"abandons"`
	Closes       int `json:"closes"`
}

type Stats struct {
	Period        string               `json:"period"`
	EventCounts   map[EventType]int    `json:"event_counts"`
	Bosses        map[string]BossStats `json:"bosses"`
	FailureReason map[string]int       `json:"failure_reasons"`
	CloseReason   map[string]int       `json:"close_reasons"`
	SpawnRate     float64              `json:"spawn_success_rate"`
}

// CalculateStats computes per-boss counters from events
func CalculateStats(events []Event, since time.Time) (Stats, error) {
	stats := Stats{
		Period:        since.Format("2006-01-02"),
		EventCounts:   make(map[EventType]int),
		Bosses:        make(map[string]BossStats),
		FailureReason: make(map[string]int),
		CloseReason:   make(map[string]int),
	}

	requests, spawns := 0, 0
	for _, event := range events {
		stats.EventCounts[event.Type]++

		var metadata EventMetadata
		if err := json.Unmarshal([]byte(event.Metadata), &metadata); err != nil {
			metadata = EventMetadata{}
		}

		b := stats.Bosses[event.BossID]
		switch event.Type {
		case EventActivated:
			b.Activations++
		case EventSpawnRequested:
			b.SpawnRequest++
			requests++
		case EventSpawned:
			b.Spawns++
			spawns++
		case EventSpawnFailed:
			b.Failures++
			if reason, ok := metadata["reason"].(string); ok {
				stats.FailureReason[reason]++
			}
		case EventAdopted:
			b.Adoptions++
		case EventAbandoned:
			b.Abandons++
		case EventClosed:
			b.Closes++
			if reason, ok := metadata["reason"].(string); ok {
				stats.CloseReason[reason]++
			}
		}
		if event.BossID != "" {
			stats.Bosses[event.BossID] = b
		}
	}

	if requests > 0 {
		stats.SpawnRate = float64(spawns) / float64(requests)
	}

	return stats, nil
}
