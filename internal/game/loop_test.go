package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_StepUpdatesTickersInOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	var seen []string
	var at time.Time
	l := NewLoop(clock, time.Second, nil,
		TickerFunc(func(now time.Time) { seen = append(seen, "first"); at = now }),
		TickerFunc(func(time.Time) { panic("boom") }),
		TickerFunc(func(time.Time) { seen = append(seen, "third") }),
	)

	l.Step()
	assert.Equal(t, []string{"first", "third"}, seen)
	assert.Equal(t, start, at)
}

func TestLoop_DoRunsOnLoopGoroutine(t *testing.T) {
	ticks := make(chan struct{}, 100)
	l := NewLoop(RealClock{}, 5*time.Millisecond, nil, TickerFunc(func(time.Time) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	counter := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Do(context.Background(), func() error {
			counter++
			return nil
		}))
	}
	assert.Equal(t, 10, counter)

	sentinel := errors.New("nope")
	assert.ErrorIs(t, l.Do(context.Background(), func() error { return sentinel }), sentinel)

	err := l.Do(context.Background(), func() error { panic("kaboom") })
	assert.ErrorContains(t, err, "kaboom")

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.ErrorIs(t, l.Do(context.Background(), func() error { return nil }), ErrLoopStopped)
}

func TestInLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	base := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	c := InLocation(base, tokyo)
	assert.Equal(t, 9, c.Now().Hour())
	assert.Same(t, base, InLocation(base, nil))
}
