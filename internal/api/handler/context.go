package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tasktracker/task-system/internal/api/middleware"
	"github.com/tasktracker/task-system/internal/core/domain"
)

// ctxUser returns the identity injected by the Auth middleware. A missing
// identity means the route was mounted without Auth.
func ctxUser(c echo.Context) (*domain.PublicUser, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return user, nil
}

// bindAndValidate binds the request into req and runs the echo validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}
