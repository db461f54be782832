// Package selection tracks which moments the user has picked and hands the
// picked moments to an exporter as one ordered batch.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

var (
	ErrNoExporter    = errors.New("no exporter configured")
	ErrUnknownMoment = errors.New("moment is not loaded")
)

// MomentSource supplies the loaded moments in the order the moment table
// currently shows them, and looks single moments up by id.
type MomentSource interface {
	OrderedMoments() []catalog.Moment
	Moment(id string) (catalog.Moment, bool)
}

// Batch is the materialized export request: the selected moments in
// collection order plus the requested format. Location is filled in by the
// exporter.
type Batch struct {
	Format   string           `json:"format"`
	Moments  []catalog.Moment `json:"moments"`
	Location string           `json:"location,omitempty"`
}

// Exporter writes a batch somewhere and reports where.
type Exporter interface {
	Export(ctx context.Context, batch Batch) (string, error)
}

type Coordinator struct {
	mu       sync.Mutex
	selected map[string]struct{}

	source   MomentSource
	exporter Exporter
	logger   *slog.Logger
}

func NewCoordinator(source MomentSource, exporter Exporter, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		selected: make(map[string]struct{}),
		source:   source,
		exporter: exporter,
		logger:   logger,
	}
}

// Toggle flips the selection state of id and reports whether it is now
// selected.
func (c *Coordinator) Toggle(id string) (bool, error) {
	if !c.loaded(id) {
		return false, fmt.Errorf("toggle %s: %w", id, ErrUnknownMoment)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		return false, nil
	}
	c.selected[id] = struct{}{}
	return true, nil
}

func (c *Coordinator) Select(id string) error {
	if !c.loaded(id) {
		return fmt.Errorf("select %s: %w", id, ErrUnknownMoment)
	}
	c.mu.Lock()
	c.selected[id] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) Deselect(id string) {
	c.mu.Lock()
	delete(c.selected, id)
	c.mu.Unlock()
}

// SelectAll selects every loaded moment, including ones hidden by the current
// filter, and returns the selection size.
func (c *Coordinator) SelectAll() int {
	moments := c.source.OrderedMoments()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range moments {
		c.selected[m.ID] = struct{}{}
	}
	return len(c.selected)
}

func (c *Coordinator) Clear() {
	c.mu.Lock()
	clear(c.selected)
	c.mu.Unlock()
}

func (c *Coordinator) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[id]
	return ok
}

func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selected)
}

// Selected returns the selected ids in collection order.
func (c *Coordinator) Selected() []string {
	moments := c.materialize()
	ids := make([]string, len(moments))
	for i, m := range moments {
		ids[i] = m.ID
	}
	return ids
}

// Retain drops selected ids that are not in present, typically after a
// reload removed moments. It returns the number of ids dropped.
func (c *Coordinator) Retain(present []string) int {
	keep := make(map[string]struct{}, len(present))
	for _, id := range present {
		keep[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for id := range c.selected {
		if _, ok := keep[id]; !ok {
			delete(c.selected, id)
			dropped++
		}
	}
	return dropped
}

// ExportSelection materializes the selected moments in collection order and
// passes them to the exporter. An empty selection is a no-op: the returned
// bool is false and no exporter call happens.
func (c *Coordinator) ExportSelection(ctx context.Context, format string) (Batch, bool, error) {
	moments := c.materialize()
	if len(moments) == 0 {
		c.logger.Debug("export skipped, selection empty", "format", format)
		return Batch{}, false, nil
	}
	if c.exporter == nil {
		return Batch{}, false, ErrNoExporter
	}

	batch := Batch{Format: format, Moments: moments}
	location, err := c.exporter.Export(ctx, batch)
	if err != nil {
		return batch, true, fmt.Errorf("export %d moments as %s: %w", len(moments), format, err)
	}
	batch.Location = location

	c.logger.Info("selection exported",
		"format", format,
		"moments", len(moments),
		"location", location,
	)
	return batch, true, nil
}

func (c *Coordinator) materialize() []catalog.Moment {
	moments := c.source.OrderedMoments()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.selected) == 0 {
		return nil
	}
	out := make([]catalog.Moment, 0, len(c.selected))
	for _, m := range moments {
		if _, ok := c.selected[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (c *Coordinator) loaded(id string) bool {
	_, ok := c.source.Moment(id)
	return ok
}
