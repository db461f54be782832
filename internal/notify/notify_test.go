package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/heimdex-review/internal/logging"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, logging.Discard())
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.TagCreated(TagEvent{MomentID: "m1"})
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, Stats{Signals: 10, Reloads: 1}, d.Stats())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, logging.Discard())
	defer d.Stop()

	d.TagCreated(TagEvent{})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	d.TagCreated(TagEvent{})
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_FailedReloadNotCounted(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("store offline")
	}, logging.Discard())
	defer d.Stop()

	d.TagCreated(TagEvent{})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), d.Stats().Reloads)
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, logging.Discard())

	d.TagCreated(TagEvent{})
	d.Stop()
	d.TagCreated(TagEvent{})

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, int64(1), d.Stats().Signals)
}

type recordingSink struct {
	mu     sync.Mutex
	events []TagEvent
}

func (r *recordingSink) TagCreated(ev TagEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) snapshot() []TagEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TagEvent(nil), r.events...)
}

func TestRedisSource_ForwardsEvents(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	sink := &recordingSink{}
	src, err := NewRedisSource("redis://"+mr.Addr()+"/0", "", sink, logging.Discard())
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, src.Publish(ctx, TagEvent{MomentID: "m7", GameID: "g1"}))
	mr.Publish(DefaultChannel, "not json")

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	events := sink.snapshot()
	assert.Equal(t, TagEvent{MomentID: "m7", GameID: "g1", Source: "redis"}, events[0])
	assert.Equal(t, TagEvent{Source: "redis"}, events[1])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRedisSource_BadURL(t *testing.T) {
	_, err := NewRedisSource("http://nope", "", &recordingSink{}, logging.Discard())
	assert.Error(t, err)
}
