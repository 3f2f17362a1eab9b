package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"bossspawner/internal/marker"
)

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validTrigger(c.TriggerMode) {
		add("trigger_mode: unknown mode %q", c.TriggerMode)
	}
	errs = append(errs, validateAbandon("abandon", c.Abandon)...)
	if c.EncounterRange < 0 {
		add("encounter_range: must not be negative")
	}
	if c.VoidMargin != nil && *c.VoidMargin < 0 {
		add("void_margin: must not be negative")
	}
	for i, v := range c.SpawnVoids {
		if v.Radius <= 0 {
			add("spawn_voids[%d]: radius must be positive", i)
		}
	}
	if _, err := c.Location(); err != nil {
		add("timezone: %w", err)
	}
	if _, err := marker.ParseColor(c.Marker.Color); err != nil {
		add("marker.color: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %w", err)
	}

	seen := map[string]int{}
	for i, b := range c.Bosses {
		where := fmt.Sprintf("bosses[%d]", i)
		if b.ID == "" {
			add("%s: id is required", where)
		} else {
			where = fmt.Sprintf("bosses[%d] (%s)", i, b.ID)
			if prev, dup := seen[b.ID]; dup {
				add("%s: duplicate id, first used by bosses[%d]", where, prev)
			} else {
				seen[b.ID] = i
			}
		}
		if len(b.SpawnGroups) == 0 {
			add("%s: at least one spawn group is required", where)
		}
		for j, g := range b.SpawnGroups {
			if g.Name == "" {
				add("%s: spawn_groups[%d]: name is required", where, j)
			}
		}
		if b.SpawnSphere.Radius <= 0 {
			add("%s: spawn_sphere.radius must be positive", where)
		}
		if b.ClearanceRadius < 0 {
			add("%s: clearance_radius must not be negative", where)
		}
		if b.TriggerMode != "" && !validTrigger(b.TriggerMode) {
			add("%s: trigger_mode: unknown mode %q", where, b.TriggerMode)
		}
		if b.Abandon != nil {
			errs = append(errs, validateAbandon(where+": abandon", b.AbandonPolicy(c.Abandon))...)
		}
	}
	return errors.Join(errs...)
}

func validTrigger(mode string) bool {
	return mode == TriggerDirect || mode == TriggerEncounter
}

func validateAbandon(where string, a Abandon) []error {
	var errs []error
	if a.Mode != AbandonImmediate && a.Mode != AbandonDebounced {
		errs = append(errs, fmt.Errorf("%s.mode: unknown mode %q", where, a.Mode))
	}
	if a.Radius != nil && *a.Radius < 0 {
		errs = append(errs, fmt.Errorf("%s.radius: must not be negative", where))
	}
	if a.Mode == AbandonDebounced && a.Grace < time.Second {
		errs = append(errs, fmt.Errorf("%s.grace: must be at least 1s", where))
	}
	return errs
}
