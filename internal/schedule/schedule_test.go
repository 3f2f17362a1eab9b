package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC)
}

func TestSchedule_FrameChanged_SameBucket(t *testing.T) {
	s := Schedule{OffsetHours: 6, IntervalHours: 24}

	assert.False(t, s.FrameChanged(at(8, 0), at(7, 0)))
	assert.False(t, s.FrameChanged(at(23, 0), at(6, 30)))
	assert.False(t, s.FrameChanged(at(5, 0), at(1, 0)))
}

func TestSchedule_FrameChanged_CrossingOffset(t *testing.T) {
	s := Schedule{OffsetHours: 6, IntervalHours: 24}
	assert.True(t, s.FrameChanged(at(6, 1), at(5, 59)))
}

func TestSchedule_FrameChanged_ShortInterval(t *testing.T) {
	s := Schedule{OffsetHours: 0.25, IntervalHours: 0.5}

	assert.False(t, s.FrameChanged(at(10, 20), at(10, 16)))
	assert.True(t, s.FrameChanged(at(10, 46), at(10, 44)))
}

func TestSchedule_Countdown(t *testing.T) {
	s := Schedule{OffsetHours: 6, IntervalHours: 24}

	assert.Equal(t, 0.0, s.Countdown(at(6, 0)))
	assert.InDelta(t, 1.0, s.Countdown(at(5, 0)), 1e-9)
	assert.InDelta(t, 23.0, s.Countdown(at(7, 0)), 1e-9)
}

func TestSchedule_Countdown_AlwaysInRange(t *testing.T) {
	schedules := []Schedule{
		{OffsetHours: 0.25, IntervalHours: 0.5},
		{OffsetHours: 13, IntervalHours: 5},
		{OffsetHours: -3, IntervalHours: 7},
		{OffsetHours: 30, IntervalHours: 24},
	}
	for _, s := range schedules {
		for minute := 0; minute < 24*60; minute += 7 {
			c := s.Countdown(at(0, 0).Add(time.Duration(minute) * time.Minute))
			assert.GreaterOrEqual(t, c, 0.0, "%s at minute %d", s, minute)
			assert.Less(t, c, s.Interval(), "%s at minute %d", s, minute)
		}
	}
}

func TestSchedule_NonPositiveIntervalIsDaily(t *testing.T) {
	assert.Equal(t, 24.0, Schedule{IntervalHours: 0}.Interval())
	assert.Equal(t, 24.0, Schedule{IntervalHours: -2}.Interval())

	s := Schedule{OffsetHours: 12, IntervalHours: 0}
	assert.InDelta(t, 2.0, s.Countdown(at(10, 0)), 1e-9)
}

func TestScheduler_FirstUpdateNeverFires(t *testing.T) {
	sc := NewScheduler([]Schedule{{OffsetHours: 6, IntervalHours: 0.01}})

	assert.False(t, sc.Update(at(6, 0)))

	_, ok := sc.Countdown()
	assert.True(t, ok)
}

func TestScheduler_DetectsEdgeAfterInitialize(t *testing.T) {
	sc := NewScheduler([]Schedule{{OffsetHours: 6, IntervalHours: 24}})
	sc.Initialize(at(5, 59))

	assert.True(t, sc.Update(at(6, 1)))
	assert.False(t, sc.Update(at(6, 2)))
}

func TestScheduler_MinimumCountdown(t *testing.T) {
	sc := NewScheduler([]Schedule{
		{OffsetHours: 18, IntervalHours: 24},
		{OffsetHours: 12, IntervalHours: 24},
	})
	sc.Update(at(10, 0))

	c, ok := sc.Countdown()
	require.True(t, ok)
	assert.InDelta(t, 2.0, c, 1e-9)
}

func TestScheduler_NoSchedules(t *testing.T) {
	sc := NewScheduler(nil)
	sc.Initialize(at(0, 0))

	assert.False(t, sc.Update(at(12, 0)))
	_, ok := sc.Countdown()
	assert.False(t, ok)
}

func TestScheduler_LongStallReportsSingleEdge(t *testing.T) {
	sc := NewScheduler([]Schedule{{OffsetHours: 0, IntervalHours: 1}})
	sc.Initialize(at(1, 30))

	// five boundaries crossed, one edge reported
	assert.True(t, sc.Update(at(6, 30)))
	assert.False(t, sc.Update(at(6, 31)))
}

func TestFormatHours(t *testing.T) {
	assert.Equal(t, "01:30:00", FormatHours(1.5))
	assert.Equal(t, "00:00:36", FormatHours(0.01))
	assert.Equal(t, "00:00:00", FormatHours(-1))
}
