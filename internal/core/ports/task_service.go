package ports

import (
	"context"

	"github.com/tasktracker/task-system/internal/core/domain"
)

// CreateTaskInput is the DTO passed from the transport layer to TaskService.
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    string
	DueDate     string
	AssigneeID  *int64
}

// UpdateTaskInput carries a partial update. Empty strings and nil mean unchanged.
type UpdateTaskInput struct {
	Status     string
	Priority   string
	DueDate    *string
	AssigneeID *int64
}

// ListTasksInput carries the list endpoint parameters.
type ListTasksInput struct {
	Status string
	Page   int
	Limit  int
}

// ListTasksResult is returned by List.
type ListTasksResult struct {
	Items      []*domain.Task
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// EnqueueResult acknowledges a task creation request.
type EnqueueResult struct {
	EventID string
	Event   *domain.TaskEvent
}

// TaskService defines the task use cases. Every call acts on behalf of an
// already verified user.
type TaskService interface {
	Enqueue(ctx context.Context, user *domain.PublicUser, in CreateTaskInput) (*EnqueueResult, error)
	Get(ctx context.Context, user *domain.PublicUser, id string) (*domain.Task, error)
	List(ctx context.Context, user *domain.PublicUser, in ListTasksInput) (*ListTasksResult, error)
	Update(ctx context.Context, user *domain.PublicUser, id string, in UpdateTaskInput) (*domain.Task, error)
}
