package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tasktracker/task-system/internal/core/ports"
)

// TaskHandler handles HTTP requests for task operations.
type TaskHandler struct {
	service ports.TaskService
}

func NewTaskHandler(service ports.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// Create handles POST /tasks. The task is queued, not stored: the response
// is 202 with the queue position, and the document appears once the
// ingestion consumer has processed it.
func (h *TaskHandler) Create(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req createTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.service.Enqueue(c.Request().Context(), user, ports.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, enqueueTaskResponse{
		EventID:    res.EventID,
		Status:     "queued",
		Title:      res.Event.Title,
		Priority:   string(res.Event.Priority),
		CreatorID:  res.Event.CreatorID,
		EnqueuedAt: res.Event.EnqueuedAt,
	})
}

// List handles GET /tasks?status=&page=&limit=.
func (h *TaskHandler) List(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var q listTasksQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}

	res, err := h.service.List(c.Request().Context(), user, ports.ListTasksInput{
		Status: q.Status,
		Page:   q.Page,
		Limit:  q.Limit,
	})
	if err != nil {
		return err
	}

	items := make([]taskResponse, 0, len(res.Items))
	for _, t := range res.Items {
		items = append(items, toTaskResponse(t))
	}
	return c.JSON(http.StatusOK, listTasksResponse{
		Items:      items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	})
}

// Get handles GET /tasks/:id.
func (h *TaskHandler) Get(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	task, err := h.service.Get(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskResponse(task))
}

// Update handles PUT /tasks/:id. Absent fields are left unchanged; an empty
// due_date clears it.
func (h *TaskHandler) Update(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req updateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := h.service.Update(c.Request().Context(), user, c.Param("id"), ports.UpdateTaskInput{
		Status:     req.Status,
		Priority:   req.Priority,
		DueDate:    req.DueDate,
		AssigneeID: req.AssigneeID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskResponse(task))
}
