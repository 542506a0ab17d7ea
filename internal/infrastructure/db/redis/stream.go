package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tasktracker/task-system/internal/core/ports"
)

const payloadField = "payload"

// StreamConfig names the stream and the single consumer reading it.
type StreamConfig struct {
	Stream   string
	Group    string
	Consumer string
}

// EventLog is the ingestion queue backed by a Redis stream and one consumer
// group. The group's pending entries list is the uncommitted window: an
// entry stays pending until Commit acknowledges it.
type EventLog struct {
	client redis.Cmdable
	cfg    StreamConfig
}

var _ ports.EventLog = (*EventLog)(nil)

// NewEventLog wraps client. Call EnsureGroup before polling.
func NewEventLog(client redis.Cmdable, cfg StreamConfig) *EventLog {
	return &EventLog{client: client, cfg: cfg}
}

// EnsureGroup creates the stream and consumer group if missing. A new group
// starts from the beginning of the stream.
func (l *EventLog) EnsureGroup(ctx context.Context) error {
	err := l.client.XGroupCreateMkStream(ctx, l.cfg.Stream, l.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (l *EventLog) Publish(ctx context.Context, payload []byte) (string, error) {
	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.cfg.Stream,
		Values: map[string]any{payloadField: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream publish: %w", err)
	}
	return id, nil
}

// Poll returns this consumer's oldest unacknowledged entry if there is one,
// otherwise blocks up to timeout for a new entry.
func (l *EventLog) Poll(ctx context.Context, timeout time.Duration) (*ports.Message, error) {
	msg, err := l.read(ctx, "0", -1)
	if err != nil || msg != nil {
		return msg, err
	}
	return l.read(ctx, ">", timeout)
}

func (l *EventLog) read(ctx context.Context, from string, block time.Duration) (*ports.Message, error) {
	streams, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.cfg.Group,
		Consumer: l.cfg.Consumer,
		Streams:  []string{l.cfg.Stream, from},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("stream read: %w", err)
	}
	for _, s := range streams {
		for _, m := range s.Messages {
			return toMessage(m), nil
		}
	}
	return nil, nil
}

// toMessage extracts the payload. An entry trimmed from the stream while
// pending comes back with no values and yields an empty payload.
func toMessage(m redis.XMessage) *ports.Message {
	msg := &ports.Message{ID: m.ID}
	switch v := m.Values[payloadField].(type) {
	case string:
		msg.Payload = []byte(v)
	case []byte:
		msg.Payload = v
	}
	return msg
}

func (l *EventLog) Commit(ctx context.Context, id string) error {
	if err := l.client.XAck(ctx, l.cfg.Stream, l.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("stream ack: %w", err)
	}
	return nil
}
