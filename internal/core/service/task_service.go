package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
	"github.com/tasktracker/task-system/internal/pkg/metrics"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxTitleLength   = 100
)

type TaskService struct {
	repo   ports.TaskRepository
	events ports.EventLog
	logger zerolog.Logger
	now    func() time.Time
}

var _ ports.TaskService = (*TaskService)(nil)

func NewTaskService(repo ports.TaskRepository, events ports.EventLog, logger zerolog.Logger) *TaskService {
	return &TaskService{repo: repo, events: events, logger: logger, now: time.Now}
}

// Enqueue validates a creation request and publishes it to the ingestion
// log. The task document is written later by the ingestion consumer.
func (s *TaskService) Enqueue(ctx context.Context, user *domain.PublicUser, in ports.CreateTaskInput) (*ports.EnqueueResult, error) {
	ev, err := s.buildEvent(user, in)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode task event: %w", err)
	}

	id, err := s.events.Publish(ctx, payload)
	if err != nil {
		s.logger.Error().Err(err).Int64("creator_id", user.ID).Msg("failed to enqueue task")
		return nil, fmt.Errorf("%w: enqueue task: %v", domain.ErrPersistence, err)
	}

	metrics.TasksEnqueuedTotal.WithLabelValues(string(ev.Priority)).Inc()
	s.logger.Info().Str("event_id", id).Int64("creator_id", user.ID).Msg("task enqueued")
	return &ports.EnqueueResult{EventID: id, Event: ev}, nil
}

func (s *TaskService) buildEvent(user *domain.PublicUser, in ports.CreateTaskInput) (*domain.TaskEvent, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || len([]rune(title)) > maxTitleLength {
		return nil, fmt.Errorf("%w: title must be 1-%d characters", domain.ErrInvalidInput, maxTitleLength)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", domain.ErrInvalidInput)
	}

	priority := domain.Priority(in.Priority)
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidInput, in.Priority)
	}
	if in.DueDate != "" {
		if _, err := time.Parse(domain.DateLayout, in.DueDate); err != nil {
			return nil, fmt.Errorf("%w: due_date must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
	}
	if in.AssigneeID != nil && *in.AssigneeID <= 0 {
		return nil, fmt.Errorf("%w: assignee_id must be positive", domain.ErrInvalidInput)
	}

	return &domain.TaskEvent{
		Title:       title,
		Description: in.Description,
		Priority:    priority,
		DueDate:     in.DueDate,
		AssigneeID:  in.AssigneeID,
		CreatorID:   user.ID,
		EnqueuedAt:  s.now().UTC(),
	}, nil
}

// Get returns a task visible to user. Tasks the user may not see are
// reported as not found.
func (s *TaskService) Get(ctx context.Context, user *domain.PublicUser, id string) (*domain.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.VisibleTo(user) {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// List returns the tasks user created or is assigned to; admins see all.
func (s *TaskService) List(ctx context.Context, user *domain.PublicUser, in ports.ListTasksInput) (*ports.ListTasksResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page := in.Page
	if page <= 0 {
		page = 1
	}
	if in.Status != "" && !domain.TaskStatus(in.Status).Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, in.Status)
	}

	filter := ports.ListTasksFilter{Status: in.Status, Page: page, Limit: limit}
	if user.Role != domain.RoleAdmin {
		filter.UserID = user.ID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &ports.ListTasksResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// Update applies a partial update. Only the creator or an admin may edit,
// and status changes must follow the transition table.
func (s *TaskService) Update(ctx context.Context, user *domain.PublicUser, id string, in ports.UpdateTaskInput) (*domain.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.VisibleTo(user) {
		return nil, domain.ErrTaskNotFound
	}
	if !task.EditableBy(user) {
		return nil, domain.ErrForbidden
	}

	patch := ports.TaskPatch{UpdatedAt: s.now().UTC()}
	if in.Status != "" {
		next := domain.TaskStatus(in.Status)
		if !next.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, in.Status)
		}
		if !task.Status.CanTransitionTo(next) {
			return nil, fmt.Errorf("%w (from %s to %s)", domain.ErrInvalidTransition, task.Status, next)
		}
		patch.Status = &next
	}
	if in.Priority != "" {
		p := domain.Priority(in.Priority)
		if !p.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidInput, in.Priority)
		}
		patch.Priority = &p
	}
	if in.DueDate != nil {
		if *in.DueDate != "" {
			if _, err := time.Parse(domain.DateLayout, *in.DueDate); err != nil {
				return nil, fmt.Errorf("%w: due_date must be YYYY-MM-DD", domain.ErrInvalidInput)
			}
		}
		patch.DueDate = in.DueDate
	}
	if in.AssigneeID != nil {
		if *in.AssigneeID <= 0 {
			return nil, fmt.Errorf("%w: assignee_id must be positive", domain.ErrInvalidInput)
		}
		patch.AssigneeID = in.AssigneeID
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", id).Msg("failed to update task")
		return nil, err
	}

	s.logger.Info().Str("task_id", id).Int64("user_id", user.ID).Msg("task updated")
	return updated, nil
}
