package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
)

// IngestService turns queued task events into task documents.
type IngestService struct {
	repo     ports.TaskRepository
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

var _ ports.TaskIngestor = (*IngestService)(nil)

// NewIngestService returns the decoder/persister used by the ingestion consumer.
func NewIngestService(repo ports.TaskRepository, log zerolog.Logger) *IngestService {
	return &IngestService{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		now:      time.Now,
	}
}

// Decode parses a task event. Unknown fields are ignored; a payload that is
// not JSON or lacks a required field fails with domain.ErrDeserialization.
func (s *IngestService) Decode(payload []byte) (*domain.TaskEvent, error) {
	var ev domain.TaskEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeserialization, err)
	}
	if err := s.validate.Struct(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeserialization, err)
	}
	return &ev, nil
}

// Persist stores ev as a new task keyed by the log position it came from.
func (s *IngestService) Persist(ctx context.Context, eventID string, ev *domain.TaskEvent) error {
	task := domain.NewTaskFromEvent(ev, eventID, s.now().UTC())
	if err := s.repo.InsertFromEvent(ctx, task); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	s.log.Info().
		Str("event_id", eventID).
		Str("task_id", task.ID).
		Int64("creator_id", ev.CreatorID).
		Msg("task persisted")
	return nil
}
