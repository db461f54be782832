package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "review:tag-created"

// Signaler receives tag events.
type Signaler interface {
	TagCreated(ev TagEvent)
}

// RedisSource forwards tag events published on a redis channel, for setups
// where the tagging tool runs as a separate process.
type RedisSource struct {
	rdb     *redis.Client
	channel string
	sink    Signaler
	logger  *slog.Logger
}

// NewRedisSource parses url (redis://host:port/db) and returns a source for
// channel.
func NewRedisSource(url, channel string, sink Signaler, logger *slog.Logger) (*RedisSource, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSource{rdb: redis.NewClient(opt), channel: channel, sink: sink, logger: logger}, nil
}

// Run subscribes and forwards messages until ctx is done. Payloads that are
// not JSON tag events still count as a signal.
func (s *RedisSource) Run(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("listening for tag events", "channel", s.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev TagEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.Debug("non-JSON tag event payload", "error", err)
				ev = TagEvent{}
			}
			if ev.Source == "" {
				ev.Source = "redis"
			}
			s.sink.TagCreated(ev)
		}
	}
}

// Publish sends ev on the channel. The CLI uses it to signal a running agent.
func (s *RedisSource) Publish(ctx context.Context, ev TagEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, string(data)).Err()
}

func (s *RedisSource) Close() error {
	return s.rdb.Close()
}
