package spawner

import (
	"crypto/rand"
	mrand "math/rand/v2"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"bossspawner/internal/game"
	"bossspawner/internal/geom"
	"bossspawner/internal/world"
)

const (
	DefaultTimeout = 10 * time.Second
	// MatchTolerance is how far an announced entity may be from the
	// requested target and still count as ours.
	MatchTolerance = 500.0
)

type State int

const (
	StateIdle State = iota
	StateSpawning
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "idle"
	}
}

type FailureReason string

const (
	FailureNone     FailureReason = ""
	FailureRejected FailureReason = "rejected"
	FailureTimeout  FailureReason = "timeout"
)

// Group is a weighted spawn group option.
type Group struct {
	Name   string
	Weight float64
}

// PickGroup draws a group name proportionally to weight. Non-positive weights
// count as 1.
func PickGroup(rng *mrand.Rand, groups []Group) string {
	if len(groups) == 0 {
		return ""
	}
	total := 0.0
	for _, g := range groups {
		total += weightOf(g)
	}
	r := rng.Float64() * total
	for _, g := range groups {
		r -= weightOf(g)
		if r < 0 {
			return g.Name
		}
	}
	return groups[len(groups)-1].Name
}

func weightOf(g Group) float64 {
	if g.Weight <= 0 {
		return 1
	}
	return g.Weight
}

type TrackerConfig struct {
	BossID     string
	FactionTag string
	Groups     []Group
	Timeout    time.Duration
}

// Tracker follows a single outstanding spawn request for one boss.
type Tracker struct {
	svc   Service
	clock game.Clock
	rng   *mrand.Rand
	log   *zap.Logger
	cfg   TrackerConfig

	state        State
	failure      FailureReason
	target       geom.Transform
	ignoreSafety bool
	startedAt    time.Time
	requestID    ulid.ULID
	group        string

	entity    world.Entity
	protected bool

	sub        SubscriptionID
	subscribed bool

	onSpawned func(world.Entity)
}

func NewTracker(svc Service, clock game.Clock, rng *mrand.Rand, cfg TrackerConfig, logger *zap.Logger) *Tracker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64()))
	}
	return &Tracker{
		svc:   svc,
		clock: clock,
		rng:   rng,
		cfg:   cfg,
		log:   logger.With(zap.String("boss", cfg.BossID)),
	}
}

// OnSpawned registers the callback run when an entity becomes ours, either
// from a matching announcement or through Adopt.
func (t *Tracker) OnSpawned(fn func(world.Entity)) { t.onSpawned = fn }

func (t *Tracker) State() State               { return t.state }
func (t *Tracker) Failure() FailureReason     { return t.failure }
func (t *Tracker) Entity() world.Entity       { return t.entity }
func (t *Tracker) Target() geom.Transform     { return t.target }
func (t *Tracker) RequestID() ulid.ULID       { return t.requestID }
func (t *Tracker) Group() string              { return t.group }
func (t *Tracker) Protected() bool            { return t.protected }
func (t *Tracker) Subscribed() bool           { return t.subscribed }
func (t *Tracker) StartedAt() time.Time       { return t.startedAt }
func (t *Tracker) Timeout() time.Duration     { return t.cfg.Timeout }
func (t *Tracker) Config() TrackerConfig      { return t.cfg }
func (t *Tracker) IsMine(e world.Entity) bool { return IsTaggedFor(e, t.cfg.BossID) }

// RequestSpawn asks the service for a new entity at target. It returns false
// when the service rejects the request synchronously.
func (t *Tracker) RequestSpawn(target geom.Transform, ignoreSafety bool) bool {
	if t.state == StateSpawning || t.state == StateSuccess {
		t.log.Warn("spawn request ignored; already tracking", zap.Stringer("state", t.state))
		return false
	}

	t.requestID = ulid.MustNew(ulid.Timestamp(t.clock.Now()), rand.Reader)
	t.group = PickGroup(t.rng, t.cfg.Groups)
	t.target = target
	t.ignoreSafety = ignoreSafety
	t.startedAt = t.clock.Now()
	t.failure = FailureNone
	t.state = StateSpawning
	t.subscribe()

	log := t.log.With(zap.Stringer("request", t.requestID), zap.String("group", t.group))
	log.Info("spawn request", zap.Float64s("target", target.Position[:]))

	accepted := t.svc.RequestSpawn(Request{
		SpawnGroups:  []string{t.group},
		Target:       target,
		IgnoreSafety: ignoreSafety,
		FactionTag:   t.cfg.FactionTag,
		RequestTag:   RequestTag,
		Context:      t.cfg.BossID,
	})
	if !accepted {
		t.unsubscribe()
		t.state = StateFailure
		t.failure = FailureRejected
		log.Warn("spawn request rejected")
		return false
	}
	return true
}

// Update advances timeouts and applies despawn protection.
func (t *Tracker) Update(now time.Time) {
	switch t.state {
	case StateSpawning:
		if now.Sub(t.startedAt) > t.cfg.Timeout {
			t.unsubscribe()
			t.state = StateFailure
			t.failure = FailureTimeout
			t.log.Warn("spawn request timed out",
				zap.Stringer("request", t.requestID),
				zap.Duration("timeout", t.cfg.Timeout))
		}
	case StateSuccess:
		if !t.protected && t.entity != nil {
			t.protected = t.svc.MarkProtectedFromCleanup(t.entity)
			if t.protected {
				t.log.Info("cleanup protection applied", zap.Int64("entity", t.entity.ID()))
			}
		}
	}
}

// Adopt takes ownership of an entity already present in the world.
func (t *Tracker) Adopt(e world.Entity) bool {
	if e == nil || e.Closed() {
		return false
	}
	if v, ok := e.Tag(InstanceTagKey); ok && v != t.cfg.BossID {
		t.log.Error("refusing entity owned by another boss", zap.String("owner", v), zap.Int64("entity", e.ID()))
		return false
	}
	t.setEntity(e)
	return true
}

// Reset forgets a finished request so another can be made.
func (t *Tracker) Reset() {
	t.unsubscribe()
	t.state = StateIdle
	t.failure = FailureNone
	t.entity = nil
	t.protected = false
}

// Close drops the subscription and the entity reference. The entity itself is
// left alone; destroying it is the owner's decision. A failure stays readable.
func (t *Tracker) Close() {
	t.unsubscribe()
	t.entity = nil
	t.protected = false
	if t.state != StateFailure {
		t.state = StateIdle
	}
}

func (t *Tracker) notify(e world.Entity) {
	if t.state != StateSpawning {
		return
	}
	if !t.IsMine(e) {
		return
	}
	if d := geom.Distance(e.Position(), t.target.Position); d > MatchTolerance {
		t.log.Warn("same id but different position",
			zap.Int64("entity", e.ID()),
			zap.Float64("distance", d))
		return
	}
	t.log.Info("spawn matched", zap.Stringer("request", t.requestID), zap.Int64("entity", e.ID()))
	t.setEntity(e)
}

func (t *Tracker) setEntity(e world.Entity) {
	e.SetTag(InstanceTagKey, t.cfg.BossID)
	t.unsubscribe()
	t.entity = e
	t.protected = false
	t.state = StateSuccess
	t.failure = FailureNone
	if t.onSpawned != nil {
		t.onSpawned(e)
	}
}

func (t *Tracker) subscribe() {
	if t.subscribed {
		return
	}
	t.sub = t.svc.Subscribe(t.notify)
	t.subscribed = true
}

func (t *Tracker) unsubscribe() {
	if !t.subscribed {
		return
	}
	t.svc.Unsubscribe(t.sub)
	t.subscribed = false
}
