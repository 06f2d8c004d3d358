// Package playback owns the playback position and its autoplay progression.
package playback

import (
	"sync"

	"clickchain/domain/timeline"
)

// DefaultStep is the position increment per tick at speed 1
const DefaultStep = 0.5

// Speed is the autoplay multiplier
type Speed int

const (
	Speed1 Speed = 1
	Speed2 Speed = 2
	Speed4 Speed = 4
)

// Next returns the speed that follows s in the 1, 2, 4 cycle
func (s Speed) Next() Speed {
	switch s {
	case Speed1:
		return Speed2
	case Speed2:
		return Speed4
	default:
		return Speed1
	}
}

// State is a snapshot of playback
type State struct {
	Position  float64 `json:"position"`
	IsPlaying bool    `json:"isPlaying"`
	Speed     Speed   `json:"speed"`
}

// Initial is the state after a (re)build
func Initial() State {
	return State{Position: 0, IsPlaying: false, Speed: Speed1}
}

// Controller is the single writer of playback state. Every transition that
// starts or ends a play session advances the epoch; a tick carrying an older
// epoch is discarded.
type Controller struct {
	mu    sync.Mutex
	state State
	step  float64
	epoch uint64
}

// NewController creates a paused controller at position 0. A non-positive
// step selects DefaultStep.
func NewController(step float64) *Controller {
	if step <= 0 {
		step = DefaultStep
	}
	return &Controller{state: Initial(), step: step}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Epoch returns the current play-session epoch
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Play starts autoplay and returns the epoch ticks must carry. It is a no-op
// at the end of the timeline, reported by started being false.
func (c *Controller) Play() (epoch uint64, started bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Position >= timeline.MaxPosition {
		return c.epoch, false
	}
	if !c.state.IsPlaying {
		c.state.IsPlaying = true
		c.epoch++
	}
	return c.epoch, true
}

// Pause stops autoplay
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop()
}

// Seek moves to a clamped position and pauses
func (c *Controller) Seek(position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Position = timeline.ClampPosition(position)
	c.stop()
}

// Reset moves to 0 and pauses. Speed is kept.
func (c *Controller) Reset() {
	c.Seek(0)
}

// JumpToEnd moves to 100 and pauses
func (c *Controller) JumpToEnd() {
	c.Seek(timeline.MaxPosition)
}

// Restart returns to the initial state, as after a graph rebuild
func (c *Controller) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Initial()
	c.epoch++
}

// CycleSpeed advances the speed in any state and returns it
func (c *Controller) CycleSpeed() Speed {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Speed = c.state.Speed.Next()
	return c.state.Speed
}

// Tick advances the position by step*speed when epoch is current and
// playback is running. Reaching 100 pauses. applied is false for a discarded
// tick.
func (c *Controller) Tick(epoch uint64) (state State, applied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || !c.state.IsPlaying {
		return c.state, false
	}
	next := c.state.Position + c.step*float64(c.state.Speed)
	if next >= timeline.MaxPosition {
		c.state.Position = timeline.MaxPosition
		c.stop()
	} else {
		c.state.Position = next
	}
	return c.state, true
}

func (c *Controller) stop() {
	c.state.IsPlaying = false
	c.epoch++
}
