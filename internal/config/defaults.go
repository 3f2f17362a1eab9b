package config

import (
	"time"

	"bossspawner/internal/schedule"
)

const (
	DefaultTickInterval       = 100 * time.Millisecond
	DefaultEncounterRange     = 50000.0
	DefaultAbandonRadius      = 10000.0
	DefaultAbandonGrace       = 5 * time.Minute
	DefaultMarkerColor        = "orange"
	DefaultMarkerDecaySeconds = 5.0
	DefaultAddr               = ":8080"
	DefaultDataDir            = "data"
	DefaultPath               = "bosses.yml"
)

// Default returns the config written when no config file exists yet.
func Default() *Config {
	enabled := true
	c := &Config{
		Enabled: &enabled,
		Marker:  MarkerConfig{SuppressSound: true},
		Bosses: []Boss{
			{
				ID:      "Bababooey",
				Enabled: true,
				SpawnGroups: []SpawnGroup{
					{Name: "Porks-SpawnGroup-Boss-BigMekKrooza", Weight: 1},
				},
				SpawnSphere:      Sphere{Radius: 2000000},
				ClearanceRadius:  1000,
				GpsRadius:        500000,
				GridGpsName:      "Something Big",
				CountdownGpsName: "Something Big Comes in {countdown}",
				GpsDescription:   "Do you have what it takes?",
				Schedules: []schedule.Schedule{
					{OffsetHours: 0, IntervalHours: 4},
				},
			},
		},
	}
	c.ApplyDefaults()
	return c
}
