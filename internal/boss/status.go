package boss

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"bossspawner/internal/schedule"
)

// Status is a read-only snapshot for operators.
type Status struct {
	ID             string      `json:"id"`
	Enabled        bool        `json:"enabled"`
	Closed         bool        `json:"closed"`
	CloseReason    string      `json:"close_reason,omitempty"`
	Activated      bool        `json:"activated"`
	Position       *mgl64.Vec3 `json:"position,omitempty"`
	SpawnState     string      `json:"spawn_state"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	RequestID      string      `json:"request_id,omitempty"`
	EntityID       int64       `json:"entity_id,omitempty"`
	EntityPosition *mgl64.Vec3 `json:"entity_position,omitempty"`
	OriginalBlocks int         `json:"original_blocks,omitempty"`
	Protected      bool        `json:"protected"`
	CountdownHours *float64    `json:"countdown_hours,omitempty"`
	Countdown      string      `json:"countdown,omitempty"`
	TriggerMode    string      `json:"trigger_mode"`
	AbandonMode    string      `json:"abandon_mode"`
	AbandonedSince *time.Time  `json:"abandoned_since,omitempty"`
}

func (l *Lifecycle) Status() Status {
	s := Status{
		ID:          l.cfg.ID,
		Enabled:     l.cfg.Enabled,
		Closed:      l.closed,
		CloseReason: l.closeReason,
		Activated:   l.activated,
		SpawnState:  l.tracker.State().String(),
		TriggerMode: l.trigger.Name(),
		AbandonMode: l.abandon.Name(),
		Protected:   l.tracker.Protected(),
	}
	s.FailureReason = string(l.tracker.Failure())
	if id := l.tracker.RequestID(); !id.IsZero() {
		s.RequestID = id.String()
	}
	if l.activation != nil {
		p := l.activation.Position
		s.Position = &p
	}
	if e := l.tracker.Entity(); e != nil {
		p := e.Position()
		s.EntityID = e.ID()
		s.EntityPosition = &p
		s.OriginalBlocks = l.originalBlocks
	}
	if cd, ok := l.scheduler.Countdown(); ok {
		s.CountdownHours = &cd
		s.Countdown = schedule.FormatHours(cd)
	}
	if since, ok := l.abandon.Since(); ok {
		s.AbandonedSince = &since
	}
	return s
}
