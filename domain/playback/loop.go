package playback

import (
	"sync"
	"time"
)

// DefaultTickPeriod is the wall-clock interval between autoplay ticks
const DefaultTickPeriod = 50 * time.Millisecond

// Loop calls a step function on a fixed period. The next timer is armed only
// after the previous step returns, so steps never overlap. The loop ends
// when step returns false or Stop is called.
type Loop struct {
	period time.Duration
	step   func() bool

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	gen     uint64
}

// NewLoop creates a stopped loop. A non-positive period selects
// DefaultTickPeriod.
func NewLoop(period time.Duration, step func() bool) *Loop {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &Loop{period: period, step: step}
}

// Start arms the first tick. Starting a running loop does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.gen++
	l.arm(l.gen)
}

// Stop cancels the pending tick. A step already executing completes.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Running reports whether a tick is pending or executing
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) arm(gen uint64) {
	l.timer = time.AfterFunc(l.period, func() { l.fire(gen) })
}

func (l *Loop) fire(gen uint64) {
	l.mu.Lock()
	if !l.running || gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	more := l.step()

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	if !more {
		l.running = false
		l.timer = nil
		return
	}
	l.arm(gen)
}
