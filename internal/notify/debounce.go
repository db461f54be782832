// Package notify turns "tag created" signals from the tagging surface into
// coalesced reloads of the review state.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
)

const (
	DefaultDelay  = 250 * time.Millisecond
	reloadTimeout = 30 * time.Second
)

// TagEvent describes a newly created moment. All fields are informational;
// any event triggers a full reload.
type TagEvent struct {
	MomentID  string `json:"moment_id,omitempty"`
	GameID    string `json:"game_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// ReloadFunc rebuilds the review state.
type ReloadFunc func(ctx context.Context) error

// Debouncer collapses bursts of tag events into one reload that runs after
// the burst has been quiet for the configured delay.
type Debouncer struct {
	debounced func(func())
	reload    ReloadFunc
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// running is held for the duration of a reload
	running sync.Mutex

	signals atomic.Int64
	reloads atomic.Int64
	last    atomic.Pointer[TagEvent]
}

func NewDebouncer(delay time.Duration, reload ReloadFunc, logger *slog.Logger) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		debounced: debounce.New(delay),
		reload:    reload,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// TagCreated records ev and schedules a reload.
func (d *Debouncer) TagCreated(ev TagEvent) {
	if d.ctx.Err() != nil {
		return
	}
	d.signals.Add(1)
	d.last.Store(&ev)
	d.debounced(d.fire)
}

func (d *Debouncer) fire() {
	d.running.Lock()
	defer d.running.Unlock()
	if d.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, reloadTimeout)
	defer cancel()

	var momentID string
	if ev := d.last.Load(); ev != nil {
		momentID = ev.MomentID
	}
	if err := d.reload(ctx); err != nil {
		d.logger.Warn("reload after tag event failed", "moment_id", momentID, "error", err)
		return
	}
	n := d.reloads.Add(1)
	d.logger.Debug("reloaded after tag events", "moment_id", momentID, "reloads", n, "signals", d.signals.Load())
}

type Stats struct {
	Signals int64 `json:"signals"`
	Reloads int64 `json:"reloads"`
}

func (d *Debouncer) Stats() Stats {
	return Stats{Signals: d.signals.Load(), Reloads: d.reloads.Load()}
}

// Stop drops pending signals and waits for a running reload to finish.
func (d *Debouncer) Stop() {
	d.cancel()
	d.running.Lock()
	d.running.Unlock()
}
