package boss

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"bossspawner/internal/marker"
	"bossspawner/internal/schedule"
)

// publishMarker shows the live entity, the activated position or the
// countdown, in that order of preference.
func (l *Lifecycle) publishMarker() {
	if !l.cfg.Enabled {
		if l.markerShown {
			l.deps.Markers.Remove(l.markerID)
			l.markerShown = false
		}
		return
	}

	if e := l.tracker.Entity(); e != nil {
		l.upsertMarker(l.cfg.GridGpsName, e.Position())
		return
	}
	if l.activation == nil {
		return
	}
	if l.activated {
		l.upsertMarker(l.cfg.GridGpsName, l.activation.Position)
		return
	}
	countdown, ok := l.scheduler.Countdown()
	if !ok {
		return
	}
	l.upsertMarker(l.CountdownLabel(countdown), l.activation.Position)
}

// CountdownLabel renders CountdownGpsName for a countdown in hours.
func (l *Lifecycle) CountdownLabel(hours float64) string {
	clock := schedule.FormatHours(hours)
	return strings.NewReplacer(
		"{countdown}", clock,
		"{0}", clock,
		"{id}", l.cfg.ID,
	).Replace(l.cfg.CountdownGpsName)
}

func (l *Lifecycle) upsertMarker(name string, pos mgl64.Vec3) {
	style := l.deps.Settings.Marker
	l.deps.Markers.Upsert(marker.Marker{
		ID:            l.markerID,
		Name:          name,
		Description:   l.cfg.GpsDescription,
		Position:      pos,
		Color:         style.Color,
		Radius:        l.cfg.GpsRadius,
		DecaySeconds:  style.DecaySeconds,
		SuppressSound: style.SuppressSound,
	})
	l.markerShown = true
}
