package playback

import (
	"sync"
	"time"
)

// ClockEngine is a headless media engine: it keeps a virtual playhead that
// advances with the wall clock while playing. The review surface renders the
// actual video and follows the controller; this engine gives the controller a
// position source when no player is attached.
type ClockEngine struct {
	mu        sync.Mutex
	base      time.Duration
	startedAt time.Time
	playing   bool
	duration  time.Duration
	seekSeq   uint64

	latency time.Duration
	now     func() time.Time
}

// NewClockEngine returns a paused engine at zero. A non-zero latency makes
// seeks complete asynchronously after that delay.
func NewClockEngine(latency time.Duration) *ClockEngine {
	return &ClockEngine{latency: latency, now: time.Now}
}

// SetDuration bounds the playhead. Zero means unbounded.
func (e *ClockEngine) SetDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base = e.positionLocked()
	e.startedAt = e.now()
	e.duration = d
}

func (e *ClockEngine) Seek(target time.Duration, done func(time.Duration, error)) {
	e.mu.Lock()
	e.seekSeq++
	seq := e.seekSeq
	e.mu.Unlock()

	apply := func() {
		e.mu.Lock()
		if seq != e.seekSeq {
			// a later seek owns the playhead; still report where it is
			pos := e.positionLocked()
			e.mu.Unlock()
			done(pos, nil)
			return
		}
		e.base = e.clampLocked(target)
		e.startedAt = e.now()
		pos := e.base
		e.mu.Unlock()
		done(pos, nil)
	}

	if e.latency <= 0 {
		apply()
		return
	}
	time.AfterFunc(e.latency, apply)
}

func (e *ClockEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		e.startedAt = e.now()
		e.playing = true
	}
	return nil
}

func (e *ClockEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.base = e.positionLocked()
		e.playing = false
	}
	return nil
}

func (e *ClockEngine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *ClockEngine) positionLocked() time.Duration {
	pos := e.base
	if e.playing {
		pos += e.now().Sub(e.startedAt)
	}
	return e.clampLocked(pos)
}

func (e *ClockEngine) clampLocked(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if e.duration > 0 && pos > e.duration {
		return e.duration
	}
	return pos
}
