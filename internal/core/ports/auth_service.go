package ports

import (
	"context"

	"github.com/tasktracker/task-system/internal/core/domain"
)

// RegisterInput carries the fields of a new identity.
type RegisterInput struct {
	Username string
	Password string
	FullName string
	Role     domain.Role
}

// AuthService is the identity service's use-case surface.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	// Login authenticates the pair and mints a bearer token.
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
	// Verify resolves a bearer token to the identity it was issued for.
	Verify(ctx context.Context, token string) (*domain.PublicUser, error)
	Disable(ctx context.Context, id int64) (*domain.User, error)
}

// Verifier is the delegated verification capability consumed by services
// other than the identity service.
type Verifier interface {
	Verify(ctx context.Context, token string) (*domain.PublicUser, error)
}
