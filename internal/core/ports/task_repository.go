package ports

import (
	"context"
	"time"

	"github.com/tasktracker/task-system/internal/core/domain"
)

// TaskPatch holds the optional fields of a task update. Nil means unchanged.
type TaskPatch struct {
	Status     *domain.TaskStatus
	Priority   *domain.Priority
	DueDate    *string
	AssigneeID *int64
	UpdatedAt  time.Time
}

// ListTasksFilter scopes a listing. UserID zero means no scoping (admin).
type ListTasksFilter struct {
	UserID int64
	Status string
	Page   int
	Limit  int
}

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	// InsertFromEvent persists a task created by the ingestion consumer. It
	// is keyed on task.SourceEventID so redelivered events do not create a
	// second document.
	InsertFromEvent(ctx context.Context, task *domain.Task) error
	FindByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter ListTasksFilter) ([]*domain.Task, int64, error)
	Update(ctx context.Context, id string, patch TaskPatch) (*domain.Task, error)
}
