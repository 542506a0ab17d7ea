package domain

import (
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DateLayout is the wire format of due dates.
const DateLayout = "2006-01-02"

// validTransitions lists where each status may move. Closed tasks can only
// be reopened to todo.
var validTransitions = map[TaskStatus][]TaskStatus{
	StatusTodo:       {StatusInProgress, StatusDone, StatusCancelled},
	StatusInProgress: {StatusTodo, StatusDone, StatusCancelled},
	StatusDone:       {StatusTodo},
	StatusCancelled:  {StatusTodo},
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether a task in status s may move to next.
// Staying in the same status is always allowed.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s == next {
		return next.Valid()
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// TaskEvent is a queued request to create a task. It is produced once per
// creation request and may be delivered to the consumer more than once.
type TaskEvent struct {
	Title       string    `json:"title"                 validate:"required,max=100"`
	Description string    `json:"description"           validate:"required"`
	Priority    Priority  `json:"priority"              validate:"required,oneof=low medium high"`
	DueDate     string    `json:"due_date,omitempty"    validate:"omitempty,datetime=2006-01-02"`
	AssigneeID  *int64    `json:"assignee_id,omitempty"`
	CreatorID   int64     `json:"creator_id"            validate:"required,gt=0"`
	EnqueuedAt  time.Time `json:"enqueued_at"           validate:"required"`
}

// Task is the persisted aggregate.
type Task struct {
	ID            string     `json:"task_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        TaskStatus `json:"status"`
	Priority      Priority   `json:"priority"`
	DueDate       string     `json:"due_date,omitempty"`
	AssigneeID    *int64     `json:"assignee_id,omitempty"`
	CreatorID     int64      `json:"creator_id"`
	SourceEventID string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// VisibleTo reports whether u may read the task: its creator, its assignee,
// or an admin.
func (t *Task) VisibleTo(u *PublicUser) bool {
	if u.Role == RoleAdmin || t.CreatorID == u.ID {
		return true
	}
	return t.AssigneeID != nil && *t.AssigneeID == u.ID
}

// EditableBy reports whether u may modify the task.
func (t *Task) EditableBy(u *PublicUser) bool {
	return u.Role == RoleAdmin || t.CreatorID == u.ID
}

// NewTaskFromEvent builds the document persisted for a consumed event.
// sourceEventID is the queue position the event was read from.
func NewTaskFromEvent(ev *TaskEvent, sourceEventID string, now time.Time) *Task {
	return &Task{
		Title:         ev.Title,
		Description:   ev.Description,
		Status:        StatusTodo,
		Priority:      ev.Priority,
		DueDate:       ev.DueDate,
		AssigneeID:    ev.AssigneeID,
		CreatorID:     ev.CreatorID,
		SourceEventID: sourceEventID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
