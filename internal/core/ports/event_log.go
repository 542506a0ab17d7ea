package ports

import (
	"context"
	"time"

	"github.com/tasktracker/task-system/internal/core/domain"
)

// Message is one entry read from the ingestion log.
type Message struct {
	ID      string
	Payload []byte
}

// EventLog is the durable, ordered ingestion queue read by a single
// consumer group.
type EventLog interface {
	// Publish appends payload and returns its log position.
	Publish(ctx context.Context, payload []byte) (string, error)
	// Poll blocks up to timeout for the next message. A timeout yields
	// (nil, nil). Messages read but never committed are returned again
	// before any newer message.
	Poll(ctx context.Context, timeout time.Duration) (*Message, error)
	// Commit advances the consumer's read position past id.
	Commit(ctx context.Context, id string) error
}

// TaskIngestor decodes and persists task events for the ingestion consumer.
type TaskIngestor interface {
	// Decode fails with domain.ErrDeserialization on unusable payloads.
	Decode(payload []byte) (*domain.TaskEvent, error)
	// Persist fails with domain.ErrPersistence when the store rejects the write.
	Persist(ctx context.Context, eventID string, ev *domain.TaskEvent) error
}
