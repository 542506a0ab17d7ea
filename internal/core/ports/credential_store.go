package ports

import (
	"context"
	"time"

	"github.com/tasktracker/task-system/internal/core/domain"
)

// CredentialStore is the source of truth for identities. Failures other
// than a missing row or a taken username wrap domain.ErrStoreUnavailable.
type CredentialStore interface {
	// Create inserts user and returns it with its assigned ID.
	// Returns domain.ErrUserExists when the username is taken.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// FindByUsername and FindByID return domain.ErrIdentityNotFound when absent.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	// SetDisabled flips the disabled flag and returns the updated record.
	SetDisabled(ctx context.Context, id int64, disabled bool) (*domain.User, error)
}

// CacheBackend is a key-value store with per-key expiry. Get returns
// found=false on a miss; errors are reserved for backend failures.
type CacheBackend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}
