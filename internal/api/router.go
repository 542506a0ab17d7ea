package api

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tasktracker/task-system/internal/api/handler"
	"github.com/tasktracker/task-system/internal/api/middleware"
	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
	transport "github.com/tasktracker/task-system/internal/infrastructure/http"
	"github.com/tasktracker/task-system/internal/infrastructure/http/handlers"
)

// IdentityDeps are the collaborators of the identity service router.
type IdentityDeps struct {
	Auth               ports.AuthService
	LoginRatePerMinute int
	Checks             []handlers.DependencyCheck
	Log                zerolog.Logger
}

// NewIdentityRouter builds the identity service: registration, login, the
// verifier endpoint and administrative disable.
func NewIdentityRouter(deps IdentityDeps) *echo.Echo {
	e := transport.NewServer("identity-service", deps.Log, deps.Checks...)
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	authHandler := handler.NewAuthHandler(deps.Auth)
	authMiddleware := middleware.Auth(deps.Auth)

	// --- Auth routes ---
	e.POST("/auth/users", authHandler.Register)
	e.POST("/auth/users/", authHandler.Register)
	e.POST("/auth/token", authHandler.Login, middleware.RateLimit(deps.LoginRatePerMinute))
	e.GET("/auth/users/me", authHandler.Me, authMiddleware)
	e.PATCH("/auth/users/:id/disable", authHandler.Disable, authMiddleware, middleware.RBAC(domain.RoleAdmin))

	return e
}

// TaskDeps are the collaborators of the task service router.
type TaskDeps struct {
	Tasks    ports.TaskService
	Verifier ports.Verifier
	Checks   []handlers.DependencyCheck
	Log      zerolog.Logger
}

// NewTaskRouter builds the task service. Every task route is authenticated
// through the delegated verifier.
func NewTaskRouter(deps TaskDeps) *echo.Echo {
	e := transport.NewServer("task-service", deps.Log, deps.Checks...)
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	taskHandler := handler.NewTaskHandler(deps.Tasks)

	// --- Task routes ---
	tasks := e.Group("/tasks", middleware.Auth(deps.Verifier))
	tasks.POST("", taskHandler.Create)
	tasks.POST("/", taskHandler.Create)
	tasks.GET("", taskHandler.List)
	tasks.GET("/", taskHandler.List)
	tasks.GET("/:id", taskHandler.Get)
	tasks.PUT("/:id", taskHandler.Update)

	return e
}
