// Package clock abstracts wall time so long waits (cooldowns, retry delays, poll
// intervals) can be cancelled through a context and simulated in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock reports the current time and produces timer channels.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers a tick on C every period until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the process wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTicker wraps time.NewTicker(d).
func (Real) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Sleep blocks for d or until ctx is done, whichever happens first.
// A non-positive d returns immediately unless ctx is already done.
// Returns ctx.Err() when the wait was cut short by cancellation.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}

// Fake is a virtual clock. Every After call advances virtual time by the
// requested duration and fires immediately, so code that sleeps in a loop
// runs at full speed while still observing consistent timestamps.
// Tickers only move with Advance, never with After.
// Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	tickers []*fakeTicker
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After advances virtual time by d and returns an already-fired channel.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d > 0 {
		f.now = f.now.Add(d)
	}
	f.sleeps = append(f.sleeps, d)

	ch := make(chan time.Time, 1)
	ch <- f.now
	return ch
}

// Advance moves virtual time forward without recording a sleep. Every tick a
// ticker owes for the elapsed time is delivered before Advance returns, unless
// that ticker is stopped first.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	type due struct {
		t  *fakeTicker
		at []time.Time
	}
	var pending []due
	for _, t := range f.tickers {
		t.elapsed += d
		var at []time.Time
		for t.elapsed >= t.period {
			t.elapsed -= t.period
			at = append(at, f.now.Add(-t.elapsed))
		}
		if len(at) > 0 {
			pending = append(pending, due{t, at})
		}
	}
	f.mu.Unlock()

	for _, p := range pending {
		for _, at := range p.at {
			select {
			case p.t.c <- at:
			case <-p.t.stopped:
			}
		}
	}
}

// NewTicker returns a ticker driven by Advance. d must be positive.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		fake:    f,
		period:  d,
		c:       make(chan time.Time),
		stopped: make(chan struct{}),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Tickers returns how many tickers are running.
func (f *Fake) Tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

type fakeTicker struct {
	fake    *Fake
	period  time.Duration
	elapsed time.Duration
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() {
		close(t.stopped)
		f := t.fake
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, other := range f.tickers {
			if other == t {
				f.tickers = append(f.tickers[:i], f.tickers[i+1:]...)
				break
			}
		}
	})
}

// Sleeps returns a copy of every duration passed to After, in call order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
