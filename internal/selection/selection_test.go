package selection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

type staticSource struct {
	moments []catalog.Moment
	ordered int
}

func (s *staticSource) OrderedMoments() []catalog.Moment {
	s.ordered++
	out := make([]catalog.Moment, len(s.moments))
	copy(out, s.moments)
	return out
}

func (s *staticSource) Moment(id string) (catalog.Moment, bool) {
	for _, m := range s.moments {
		if m.ID == id {
			return m, true
		}
	}
	return catalog.Moment{}, false
}

type recordingExporter struct {
	batches []Batch
	err     error
}

func (e *recordingExporter) Export(_ context.Context, b Batch) (string, error) {
	e.batches = append(e.batches, b)
	if e.err != nil {
		return "", e.err
	}
	return "/exports/out." + b.Format, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fiveMoments() *staticSource {
	return &staticSource{moments: []catalog.Moment{
		{ID: "m3", StartMs: 300},
		{ID: "m1", StartMs: 100},
		{ID: "m5", StartMs: 500},
		{ID: "m2", StartMs: 200},
		{ID: "m4", StartMs: 400},
	}}
}

func TestExportSelection_SelectAllMaterializesInCollectionOrder(t *testing.T) {
	exp := &recordingExporter{}
	c := NewCoordinator(fiveMoments(), exp, discard())

	assert.Equal(t, 5, c.SelectAll())

	batch, ok, err := c.ExportSelection(context.Background(), "edl")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, exp.batches, 1)

	got := make([]string, len(batch.Moments))
	for i, m := range batch.Moments {
		got[i] = m.ID
	}
	assert.Equal(t, []string{"m3", "m1", "m5", "m2", "m4"}, got)
	assert.Equal(t, "/exports/out.edl", batch.Location)
	assert.Equal(t, "edl", exp.batches[0].Format)
}

func TestExportSelection_EmptyIsNoOp(t *testing.T) {
	exp := &recordingExporter{}
	c := NewCoordinator(fiveMoments(), exp, discard())

	batch, ok, err := c.ExportSelection(context.Background(), "edl")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, batch.Moments)
	assert.Empty(t, exp.batches)
}

func TestExportSelection_NoExporter(t *testing.T) {
	c := NewCoordinator(fiveMoments(), nil, discard())
	require.NoError(t, c.Select("m1"))

	_, _, err := c.ExportSelection(context.Background(), "json")
	assert.ErrorIs(t, err, ErrNoExporter)

	c.Clear()
	_, ok, err := c.ExportSelection(context.Background(), "json")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestExportSelection_ExporterFailure(t *testing.T) {
	exp := &recordingExporter{err: errors.New("disk full")}
	c := NewCoordinator(fiveMoments(), exp, discard())
	require.NoError(t, c.Select("m2"))

	_, ok, err := c.ExportSelection(context.Background(), "xlsx")
	assert.True(t, ok)
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, c.IsSelected("m2"), "selection survives a failed export")
}

func TestToggle(t *testing.T) {
	c := NewCoordinator(fiveMoments(), nil, discard())

	on, err := c.Toggle("m4")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = c.Toggle("m1")
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []string{"m1", "m4"}, c.Selected())

	on, err = c.Toggle("m4")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, []string{"m1"}, c.Selected())

	_, err = c.Toggle("missing")
	assert.ErrorIs(t, err, ErrUnknownMoment)
	assert.Equal(t, 1, c.Len())
}

func TestToggleAndSelect_LookUpSingleMoment(t *testing.T) {
	src := fiveMoments()
	c := NewCoordinator(src, nil, discard())

	_, err := c.Toggle("m2")
	require.NoError(t, err)
	require.NoError(t, c.Select("m5"))
	assert.ErrorIs(t, c.Select("missing"), ErrUnknownMoment)

	assert.Zero(t, src.ordered, "membership checks must not copy the ordered collection")
	assert.Equal(t, 2, c.Len())
}

func TestRetainPrunesRemovedMoments(t *testing.T) {
	src := fiveMoments()
	c := NewCoordinator(src, nil, discard())
	c.SelectAll()

	src.moments = src.moments[:3]
	dropped := c.Retain([]string{"m3", "m1", "m5"})

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"m3", "m1", "m5"}, c.Selected())
	assert.False(t, c.IsSelected("m2"))
}

func TestDeselectAndClear(t *testing.T) {
	c := NewCoordinator(fiveMoments(), nil, discard())
	c.SelectAll()

	c.Deselect("m5")
	c.Deselect("not-selected")
	assert.Equal(t, 4, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Selected())
}
