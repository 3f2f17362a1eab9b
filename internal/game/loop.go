package game

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrLoopStopped = errors.New("tick loop stopped")

// Ticker is advanced once per simulation step.
type Ticker interface {
	Update(now time.Time)
}

type TickerFunc func(now time.Time)

func (f TickerFunc) Update(now time.Time) { f(now) }

type command struct {
	fn    func() error
	reply chan error
}

// Loop drives the spawner at a fixed interval. It is the only goroutine that
// touches spawner state: other goroutines submit work through Do, which runs
// between ticks.
type Loop struct {
	clock    Clock
	interval time.Duration
	tickers  []Ticker
	log      *zap.Logger

	cmds     chan command
	done     chan struct{}
	stopOnce sync.Once
}

func NewLoop(clock Clock, interval time.Duration, logger *zap.Logger, tickers ...Ticker) *Loop {
	if clock == nil {
		clock = RealClock{}
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		clock:    clock,
		interval: interval,
		tickers:  tickers,
		log:      logger.Named("loop"),
		cmds:     make(chan command, 64),
		done:     make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	defer l.stopOnce.Do(func() { close(l.done) })

	l.log.Info("tick loop started", zap.Duration("interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			l.drain()
			l.log.Info("tick loop stopped")
			return ctx.Err()
		case cmd := <-l.cmds:
			cmd.reply <- l.exec(cmd.fn)
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step runs one tick on the calling goroutine.
func (l *Loop) Step() {
	now := l.clock.Now()
	for _, t := range l.tickers {
		l.safeUpdate(t, now)
	}
}

// Do runs fn on the loop goroutine and returns its error.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case l.cmds <- cmd:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) drain() {
	for {
		select {
		case cmd := <-l.cmds:
			cmd.reply <- ErrLoopStopped
		default:
			return
		}
	}
}

func (l *Loop) exec(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error("command panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("command panicked: %v", rec)
		}
	}()
	return fn()
}

func (l *Loop) safeUpdate(t Ticker, now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error("ticker panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	t.Update(now)
}
