// Package schedule turns wall-clock time into recurring spawn windows.
//
// A Schedule is a point in the day (OffsetHours) repeating every
// IntervalHours. Time is divided into buckets of one interval; crossing a
// bucket boundary between two readings is a window opening.
package schedule

import (
	"fmt"
	"math"
	"time"

	"bossspawner/internal/geom"
)

const defaultIntervalHours = 24

type Schedule struct {
	OffsetHours   float64 `yaml:"offset_hours" json:"offset_hours"`
	IntervalHours float64 `yaml:"interval_hours" json:"interval_hours"`
}

// Interval returns the effective interval; non-positive values mean daily.
func (s Schedule) Interval() float64 {
	if s.IntervalHours <= 0 {
		return defaultIntervalHours
	}
	return s.IntervalHours
}

// FrameIndex is the recurrence bucket t falls into.
func (s Schedule) FrameIndex(t time.Time) int64 {
	return int64(math.Floor((s.OffsetHours - HoursSinceMidnight(t)) / s.Interval()))
}

// FrameChanged reports whether a recurrence boundary lies between last and current.
func (s Schedule) FrameChanged(current, last time.Time) bool {
	return s.FrameIndex(current) != s.FrameIndex(last)
}

// Countdown returns the hours until the next boundary, in [0, interval).
func (s Schedule) Countdown(t time.Time) float64 {
	return geom.PositiveMod(s.OffsetHours-HoursSinceMidnight(t), s.Interval())
}

func (s Schedule) String() string {
	return fmt.Sprintf("offset=%gh interval=%gh", s.OffsetHours, s.Interval())
}

// HoursSinceMidnight is measured in t's own location.
func HoursSinceMidnight(t time.Time) float64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return float64(t.Sub(midnight)) / float64(time.Hour)
}

// FormatHours renders a countdown as HH:MM:SS.
func FormatHours(hours float64) string {
	if hours < 0 {
		hours = 0
	}
	total := int64(math.Round(hours * 3600))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
