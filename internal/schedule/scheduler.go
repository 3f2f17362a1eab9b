package schedule

import (
	"math"
	"time"
)

// Scheduler aggregates several schedules into one edge signal.
//
// Update reports at most one window opening per call: a stall long enough to
// cross several boundaries still yields a single true.
type Scheduler struct {
	schedules []Schedule

	last    time.Time
	hasLast bool

	countdown    float64
	hasCountdown bool
}

func NewScheduler(schedules []Schedule) *Scheduler {
	out := make([]Schedule, len(schedules))
	copy(out, schedules)
	return &Scheduler{schedules: out}
}

func (s *Scheduler) Initialize(now time.Time) {
	s.last = now
	s.hasLast = true
}

// Update returns true iff any schedule changed bucket since the previous call.
func (s *Scheduler) Update(now time.Time) bool {
	if len(s.schedules) == 0 {
		s.hasCountdown = false
		s.last, s.hasLast = now, true
		return false
	}

	changed := false
	lowest := math.MaxFloat64
	for _, sc := range s.schedules {
		if s.hasLast && sc.FrameChanged(now, s.last) {
			changed = true
		}
		lowest = math.Min(lowest, sc.Countdown(now))
	}

	s.countdown, s.hasCountdown = lowest, true
	s.last, s.hasLast = now, true
	return changed
}

// Countdown returns the minimum hours until the next window; false when there
// is nothing scheduled or Update has not run yet.
func (s *Scheduler) Countdown() (float64, bool) {
	return s.countdown, s.hasCountdown
}

func (s *Scheduler) Schedules() []Schedule {
	out := make([]Schedule, len(s.schedules))
	copy(out, s.schedules)
	return out
}
