package handler

import (
	"time"

	"github.com/tasktracker/task-system/internal/core/domain"
)

// --- Identity request / response types ---

type registerRequest struct {
	Username string `json:"username"  validate:"required,min=3,max=50"`
	Password string `json:"password"  validate:"required,min=8"`
	FullName string `json:"full_name" validate:"max=100"`
	Role     string `json:"role"      validate:"omitempty,oneof=client admin executor"`
}

// loginRequest accepts the OAuth2 password form as well as JSON.
type loginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// --- Task request / response types ---

type createTaskRequest struct {
	Title       string `json:"title"       validate:"required,max=100"`
	Description string `json:"description" validate:"required"`
	Priority    string `json:"priority"    validate:"omitempty,oneof=low medium high"`
	DueDate     string `json:"due_date"    validate:"omitempty,datetime=2006-01-02"`
	AssigneeID  *int64 `json:"assignee_id" validate:"omitempty,gt=0"`
}

type updateTaskRequest struct {
	Status     string  `json:"status"      validate:"omitempty,oneof=todo in_progress done cancelled"`
	Priority   string  `json:"priority"    validate:"omitempty,oneof=low medium high"`
	DueDate    *string `json:"due_date"`
	AssigneeID *int64  `json:"assignee_id" validate:"omitempty,gt=0"`
}

type listTasksQuery struct {
	Status string `query:"status"`
	Page   int    `query:"page"`
	Limit  int    `query:"limit"`
}

type taskLinks struct {
	Self string `json:"self"`
}

type enqueueTaskResponse struct {
	EventID    string    `json:"event_id"`
	Status     string    `json:"status"`
	Title      string    `json:"title"`
	Priority   string    `json:"priority"`
	CreatorID  int64     `json:"creator_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type taskResponse struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	DueDate     string    `json:"due_date,omitempty"`
	AssigneeID  *int64    `json:"assignee_id,omitempty"`
	CreatorID   int64     `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Links       taskLinks `json:"_links"`
}

type listTasksResponse struct {
	Items      []taskResponse `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

func toTaskResponse(t *domain.Task) taskResponse {
	return taskResponse{
		TaskID:      t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		AssigneeID:  t.AssigneeID,
		CreatorID:   t.CreatorID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Links:       taskLinks{Self: "/tasks/" + t.ID},
	}
}
