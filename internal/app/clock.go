package app

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time so countdowns can run on virtual time in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// ManualClock is a virtual clock. Time only moves when Advance is called.
// Advance returns once every due tick has been handed to the ticker's reader;
// whatever the reader does with the tick may still be running, so tests wait
// on its effect (an OnTick hook, for instance) rather than asserting right away.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManualClock returns a virtual clock set to start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		period: d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time),
		done:   make(chan struct{}),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves virtual time forward by d. It blocks until each due tick has
// been received or its ticker was stopped, not until the tick was processed.
func (c *ManualClock) Advance(d time.Duration) {
	type delivery struct {
		t  *manualTicker
		at time.Time
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []delivery
	live := c.tickers[:0]
	for _, t := range c.tickers {
		if t.stopped() {
			continue
		}
		live = append(live, t)
		for !t.next.After(c.now) {
			due = append(due, delivery{t: t, at: t.next})
			t.next = t.next.Add(t.period)
		}
	}
	c.tickers = live
	c.mu.Unlock()

	for _, dl := range due {
		select {
		case dl.t.ch <- dl.at:
		case <-dl.t.done:
		}
	}
}

// ActiveTickers reports how many tickers have not been stopped.
func (c *ManualClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

type manualTicker struct {
	period time.Duration
	next   time.Time
	ch     chan time.Time
	done   chan struct{}
	once   sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}

func (t *manualTicker) stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
