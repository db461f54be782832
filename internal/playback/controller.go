// Package playback owns the shared playback state: one Controller per
// process, driven only through its methods, observed through subscriptions.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

type Status string

const (
	StatusPaused  Status = "paused"
	StatusPlaying Status = "playing"
)

// State is a value copy of the playback state. Generation increases on every
// seek; Seeking is true until the engine confirms the current generation.
type State struct {
	Status     Status        `json:"status"`
	Position   time.Duration `json:"position"`
	Generation uint64        `json:"generation"`
	Seeking    bool          `json:"seeking"`
}

func (s State) Playing() bool {
	return s.Status == StatusPlaying
}

func (s State) PositionMs() int64 {
	return s.Position.Milliseconds()
}

// Engine is the media layer. Seek may complete asynchronously; done must be
// called exactly once with the position the engine actually landed on.
type Engine interface {
	Seek(target time.Duration, done func(actual time.Duration, err error))
	Play() error
	Pause() error
}

// Positioner is implemented by engines that can report where playback is.
type Positioner interface {
	Position() time.Duration
}

type Controller struct {
	// cmdMu orders commands to the engine; mu guards state and subscribers.
	// Engine completions only take mu.
	cmdMu sync.Mutex
	mu    sync.Mutex

	state  State
	subs   map[*Subscription]struct{}
	engine Engine
	logger *slog.Logger
}

func NewController(engine Engine, logger *slog.Logger) *Controller {
	return &Controller{
		state:  State{Status: StatusPaused},
		subs:   make(map[*Subscription]struct{}),
		engine: engine,
		logger: logger,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Seek moves to target regardless of play state and supersedes any seek still
// in flight. Negative targets clamp to zero; the upper bound belongs to the
// media engine.
func (c *Controller) Seek(target time.Duration) State {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	return c.seekLocked(target)
}

func (c *Controller) seekLocked(target time.Duration) State {
	if target < 0 {
		target = 0
	}

	c.mu.Lock()
	c.state.Generation++
	c.state.Position = target
	c.state.Seeking = true
	gen := c.state.Generation
	st := c.state
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Debug("seek", "target_ms", target.Milliseconds(), "generation", gen)
	c.engine.Seek(target, func(actual time.Duration, err error) {
		c.completeSeek(gen, target, actual, err)
	})
	return st
}

func (c *Controller) completeSeek(gen uint64, target, actual time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.state.Generation {
		c.logger.Debug("stale seek completion discarded",
			"generation", gen,
			"current", c.state.Generation,
			"target_ms", target.Milliseconds(),
		)
		return
	}

	c.state.Seeking = false
	if err != nil {
		c.logger.Warn("engine seek failed", "target_ms", target.Milliseconds(), "error", err)
	} else {
		c.state.Position = actual
	}
	c.publishLocked()
}

// Play starts playback. Calling it while playing is a no-op.
func (c *Controller) Play() (State, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	return c.playLocked()
}

func (c *Controller) playLocked() (State, error) {
	if st := c.State(); st.Playing() {
		return st, nil
	}
	if err := c.engine.Play(); err != nil {
		return c.State(), fmt.Errorf("engine play: %w", err)
	}
	return c.setStatus(StatusPlaying), nil
}

// Pause stops playback. Calling it while paused is a no-op.
func (c *Controller) Pause() (State, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	return c.pauseLocked()
}

func (c *Controller) pauseLocked() (State, error) {
	if st := c.State(); !st.Playing() {
		return st, nil
	}
	if err := c.engine.Pause(); err != nil {
		return c.State(), fmt.Errorf("engine pause: %w", err)
	}
	return c.setStatus(StatusPaused), nil
}

// Toggle flips between playing and paused. The state check and the command
// run as one step, so concurrent toggles alternate.
func (c *Controller) Toggle() (State, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.State().Playing() {
		return c.pauseLocked()
	}
	return c.playLocked()
}

// PlayMoment seeks to the moment start and then plays. No other command runs
// between the two steps.
func (c *Controller) PlayMoment(m catalog.Moment) (State, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.seekLocked(m.Start())
	return c.playLocked()
}

// Step seeks by whole frames relative to the current position. frameRate
// falls back to 30 when unknown.
func (c *Controller) Step(frames int, frameRate float64) State {
	if frameRate <= 0 {
		frameRate = 30
	}
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	delta := time.Duration(float64(frames) * float64(time.Second) / frameRate)
	return c.seekLocked(c.State().Position + delta)
}

// ReportPosition applies a position report from the media layer. Reports
// tagged with an old generation, or arriving while a seek is pending, are
// dropped so they cannot undo a newer seek.
func (c *Controller) ReportPosition(gen uint64, pos time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.state.Generation || c.state.Seeking {
		return false
	}
	if pos < 0 {
		pos = 0
	}
	if pos == c.state.Position {
		return true
	}
	c.state.Position = pos
	c.publishLocked()
	return true
}

// Track polls a Positioner engine while playing and feeds the result through
// ReportPosition. It returns when ctx is done or the engine cannot report.
func (c *Controller) Track(ctx context.Context, interval time.Duration) {
	p, ok := c.engine.(Positioner)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := c.State()
			if !st.Playing() || st.Seeking {
				continue
			}
			c.ReportPosition(st.Generation, p.Position())
		}
	}
}

func (c *Controller) setStatus(s Status) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Status = s
	c.publishLocked()
	return c.state
}

// Subscription delivers state changes. C always holds the latest state:
// a slow reader skips intermediate values instead of blocking the writer.
type Subscription struct {
	C  <-chan State
	ch chan State
	c  *Controller
}

// Subscribe returns a subscription primed with the current state.
func (c *Controller) Subscribe() *Subscription {
	ch := make(chan State, 1)
	sub := &Subscription{C: ch, ch: ch, c: c}

	c.mu.Lock()
	c.subs[sub] = struct{}{}
	ch <- c.state
	c.mu.Unlock()
	return sub
}

func (s *Subscription) Close() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if _, ok := s.c.subs[s]; !ok {
		return
	}
	delete(s.c.subs, s)
	close(s.ch)
}

func (c *Controller) publishLocked() {
	st := c.state
	for sub := range c.subs {
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- st
	}
}
