package boss

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"bossspawner/internal/config"
)

// Trigger decides what a schedule window and the per-second poll do.
type Trigger interface {
	Name() string
	// OnWindow runs when the scheduler reports a new window.
	OnWindow(l *Lifecycle)
	// Poll runs once per second.
	Poll(l *Lifecycle)
}

// directTrigger spawns as soon as a window opens.
type directTrigger struct{}

func (directTrigger) Name() string { return config.TriggerDirect }

func (directTrigger) OnWindow(l *Lifecycle) {
	ok := l.TrySpawn()
	l.log.Info("spawn (scheduled)", zap.Bool("result", ok))
}

func (directTrigger) Poll(*Lifecycle) {}

// encounterTrigger activates on a window and spawns once a player comes
// within range of the activation position.
type encounterTrigger struct {
	rangeM float64
}

func (encounterTrigger) Name() string { return config.TriggerEncounter }

func (encounterTrigger) OnWindow(l *Lifecycle) {
	if l.activated {
		return
	}
	ok := l.TryActivate()
	l.log.Info("activation (scheduled)", zap.Bool("result", ok))
}

func (t encounterTrigger) Poll(l *Lifecycle) {
	if !l.playerEncountered(t.rangeM) {
		return
	}
	ok := l.TrySpawn()
	l.log.Info("spawn (encounter)", zap.Bool("result", ok))
}

func newTrigger(mode string, encounterRange float64) (Trigger, error) {
	switch mode {
	case config.TriggerDirect:
		return directTrigger{}, nil
	case config.TriggerEncounter, "":
		return encounterTrigger{rangeM: encounterRange}, nil
	default:
		return nil, fmt.Errorf("unknown trigger mode %q", mode)
	}
}

// Abandoner decides when an abandoned-looking boss is actually cleaned up.
type Abandoner interface {
	Name() string
	// Observe is fed the abandonment condition once per second and reports
	// whether the boss should be closed now.
	Observe(now time.Time, abandoned bool) bool
	Reset()
	// Since returns when the current abandoned stretch began.
	Since() (time.Time, bool)
}

type immediateAbandon struct{}

func (immediateAbandon) Name() string { return config.AbandonImmediate }

func (immediateAbandon) Observe(_ time.Time, abandoned bool) bool { return abandoned }

func (immediateAbandon) Reset() {}

func (immediateAbandon) Since() (time.Time, bool) { return time.Time{}, false }

// debouncedAbandon requires the condition to hold for grace without a break.
type debouncedAbandon struct {
	grace time.Duration
	start *time.Time
}

func (*debouncedAbandon) Name() string { return config.AbandonDebounced }

func (d *debouncedAbandon) Observe(now time.Time, abandoned bool) bool {
	if !abandoned {
		d.start = nil
		return false
	}
	if d.start == nil {
		d.start = &now
		return false
	}
	return now.Sub(*d.start) >= d.grace
}

func (d *debouncedAbandon) Reset() { d.start = nil }

func (d *debouncedAbandon) Since() (time.Time, bool) {
	if d.start == nil {
		return time.Time{}, false
	}
	return *d.start, true
}

func newAbandoner(a config.Abandon) (Abandoner, error) {
	switch a.Mode {
	case config.AbandonImmediate:
		return immediateAbandon{}, nil
	case config.AbandonDebounced, "":
		grace := a.Grace
		if grace <= 0 {
			grace = config.DefaultAbandonGrace
		}
		return &debouncedAbandon{grace: grace}, nil
	default:
		return nil, fmt.Errorf("unknown abandon mode %q", a.Mode)
	}
}
