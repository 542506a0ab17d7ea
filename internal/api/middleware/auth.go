package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
)

// UserKey is the echo context key holding the verified *domain.PublicUser.
const UserKey = "user"

// Auth resolves the bearer token through verifier and injects the
// identity into context. The identity service passes its own AuthService;
// other services pass the HTTP verifier client.
func Auth(verifier ports.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := BearerToken(c.Request())
			if err != nil {
				return err
			}

			user, err := verifier.Verify(c.Request().Context(), token)
			if err != nil {
				return err
			}

			c.Set(UserKey, user)
			return next(c)
		}
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
	}
	return strings.TrimSpace(parts[1]), nil
}

// CurrentUser returns the identity injected by Auth, or nil.
func CurrentUser(c echo.Context) *domain.PublicUser {
	user, _ := c.Get(UserKey).(*domain.PublicUser)
	return user
}
