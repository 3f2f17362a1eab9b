package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"bossspawner/internal/geom"
	"bossspawner/internal/schedule"
)

const (
	TriggerDirect    = "direct"
	TriggerEncounter = "encounter"

	AbandonImmediate = "immediate"
	AbandonDebounced = "debounced"
)

type Config struct {
	// Enabled switches every boss off when false. Nil means enabled.
	Enabled  *bool  `yaml:"enabled" json:"enabled,omitempty"`
	Timezone string `yaml:"timezone" json:"timezone,omitempty" jsonschema:"description=IANA zone schedules are evaluated in; empty means server local time"`
	// TickInterval is how often the registry is updated.
	TickInterval   time.Duration `yaml:"tick_interval" json:"tick_interval,omitempty"`
	EncounterRange float64       `yaml:"encounter_range" json:"encounter_range"`
	TriggerMode    string        `yaml:"trigger_mode" json:"trigger_mode" jsonschema:"enum=direct,enum=encounter"`
	Abandon        Abandon       `yaml:"abandon" json:"abandon"`
	SpawnVoids     []Sphere      `yaml:"spawn_voids" json:"spawn_voids,omitempty"`
	VoidMargin     *float64      `yaml:"void_margin" json:"void_margin,omitempty"`
	AvoidGravity   bool          `yaml:"avoid_gravity" json:"avoid_gravity"`
	Marker         MarkerConfig  `yaml:"marker" json:"marker"`
	Log            LogConfig     `yaml:"log" json:"log"`
	Server         ServerConfig  `yaml:"server" json:"server"`
	Bosses         []Boss        `yaml:"bosses" json:"bosses"`
}

type Abandon struct {
	Mode string `yaml:"mode" json:"mode" jsonschema:"enum=immediate,enum=debounced"`
	// Radius is the player search radius around the boss. Zero disables
	// abandonment; nil takes the default.
	Radius *float64      `yaml:"radius" json:"radius,omitempty"`
	Grace  time.Duration `yaml:"grace" json:"grace,omitempty"`
}

func (a Abandon) RadiusOr(def float64) float64 {
	if a.Radius == nil {
		return def
	}
	return *a.Radius
}

type Sphere struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Z      float64 `yaml:"z" json:"z"`
	Radius float64 `yaml:"radius" json:"radius"`
}

func (s Sphere) Geom() geom.Sphere {
	return geom.NewSphere(mgl64.Vec3{s.X, s.Y, s.Z}, s.Radius)
}

type MarkerConfig struct {
	Color         string  `yaml:"color" json:"color" jsonschema:"description=SVG colour name or #rrggbb"`
	DecaySeconds  float64 `yaml:"decay_seconds" json:"decay_seconds"`
	SuppressSound bool    `yaml:"suppress_sound" json:"suppress_sound"`
	// Follow lists websocket URLs of peer relays whose markers are mirrored locally.
	Follow []string `yaml:"follow" json:"follow,omitempty"`
}

type LogConfig struct {
	Level       string `yaml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Development bool   `yaml:"development" json:"development"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr" json:"addr"`
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	AdminToken string `yaml:"admin_token" json:"admin_token,omitempty"`
}

type SpawnGroup struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight,omitempty"`
}

type Boss struct {
	ID      string `yaml:"id" json:"id" jsonschema:"minLength=1,required"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
	// SpawnGroup is the single-group shorthand; it is folded into SpawnGroups.
	SpawnGroup       string              `yaml:"spawn_group,omitempty" json:"spawn_group,omitempty"`
	SpawnGroups      []SpawnGroup        `yaml:"spawn_groups" json:"spawn_groups"`
	FactionTag       string              `yaml:"faction_tag" json:"faction_tag,omitempty"`
	PlanetSpawn      bool                `yaml:"planet_spawn" json:"planet_spawn"`
	SpawnSphere      Sphere              `yaml:"spawn_sphere" json:"spawn_sphere"`
	ClearanceRadius  float64             `yaml:"clearance_radius" json:"clearance_radius"`
	GpsRadius        float64             `yaml:"gps_radius" json:"gps_radius"`
	GridGpsName      string              `yaml:"grid_gps_name" json:"grid_gps_name"`
	CountdownGpsName string              `yaml:"countdown_gps_name" json:"countdown_gps_name" jsonschema:"description=Supports {countdown} and {id}"`
	GpsDescription   string              `yaml:"gps_description" json:"gps_description"`
	Schedules        []schedule.Schedule `yaml:"schedules" json:"schedules"`
	TriggerMode      string              `yaml:"trigger_mode,omitempty" json:"trigger_mode,omitempty"`
	Abandon          *Abandon            `yaml:"abandon,omitempty" json:"abandon,omitempty"`
}

func (b Boss) String() string {
	names := make([]string, 0, len(b.SpawnGroups))
	for _, g := range b.SpawnGroups {
		names = append(names, g.Name)
	}
	return fmt.Sprintf("id: %s, spawn groups: %s", b.ID, strings.Join(names, ","))
}

// Trigger resolves the boss's trigger mode against the global one.
func (b Boss) Trigger(global string) string {
	if b.TriggerMode != "" {
		return b.TriggerMode
	}
	return global
}

func (b Boss) AbandonPolicy(global Abandon) Abandon {
	if b.Abandon == nil {
		return global
	}
	out := *b.Abandon
	if out.Mode == "" {
		out.Mode = global.Mode
	}
	if out.Radius == nil {
		out.Radius = global.Radius
	}
	if out.Grace == 0 {
		out.Grace = global.Grace
	}
	return out
}

func (b *Boss) ApplyDefaults() {
	b.ID = strings.TrimSpace(b.ID)
	if g := strings.TrimSpace(b.SpawnGroup); g != "" {
		b.SpawnGroups = append([]SpawnGroup{{Name: g, Weight: 1}}, b.SpawnGroups...)
		b.SpawnGroup = ""
	}
	for i := range b.SpawnGroups {
		if b.SpawnGroups[i].Weight <= 0 {
			b.SpawnGroups[i].Weight = 1
		}
	}
	if b.GridGpsName == "" {
		b.GridGpsName = b.ID
	}
	if b.Schedules == nil {
		b.Schedules = []schedule.Schedule{}
	}
}

func (c *Config) ApplyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.EncounterRange <= 0 {
		c.EncounterRange = DefaultEncounterRange
	}
	if c.TriggerMode == "" {
		c.TriggerMode = TriggerEncounter
	}
	if c.Abandon.Mode == "" {
		c.Abandon.Mode = AbandonDebounced
	}
	if c.Abandon.Radius == nil {
		r := DefaultAbandonRadius
		c.Abandon.Radius = &r
	}
	if c.Abandon.Grace <= 0 {
		c.Abandon.Grace = DefaultAbandonGrace
	}
	if c.Marker.Color == "" {
		c.Marker.Color = DefaultMarkerColor
	}
	if c.Marker.DecaySeconds <= 0 {
		c.Marker.DecaySeconds = DefaultMarkerDecaySeconds
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = DefaultDataDir
	}
	for i := range c.Bosses {
		c.Bosses[i].ApplyDefaults()
	}
}

func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// VoidMarginOr returns the configured void margin or def.
func (c *Config) VoidMarginOr(def float64) float64 {
	if c.VoidMargin == nil {
		return def
	}
	return *c.VoidMargin
}

// Location resolves Timezone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Boss finds a boss entry by id.
func (c *Config) Boss(id string) (Boss, bool) {
	for _, b := range c.Bosses {
		if b.ID == id {
			return b, true
		}
	}
	return Boss{}, false
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var r Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadOrCreate loads path, writing Default() there first if it does not exist.
func LoadOrCreate(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Write(path, Default()); err != nil {
			return nil, false, err
		}
		c, err := Load(path)
		return c, true, err
	}
	c, err := Load(path)
	return c, false, err
}

func Write(path string, c *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
