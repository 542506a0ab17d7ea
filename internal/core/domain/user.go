package domain

import (
	"regexp"
	"time"
)

// Role is the single authorization attribute carried by an identity.
type Role string

const (
	RoleClient   Role = "client"
	RoleAdmin    Role = "admin"
	RoleExecutor Role = "executor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAdmin, RoleExecutor:
		return true
	}
	return false
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)

// ValidUsername reports whether u is 3–50 characters of letters, digits or underscores.
func ValidUsername(u string) bool {
	return usernamePattern.MatchString(u)
}

// User is the identity record owned by the identity service. ID and Username
// are unique and never change after creation.
type User struct {
	ID           int64     `json:"user_id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name,omitempty"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"password_hash"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Public strips everything that must not leave the identity service.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Role:     u.Role,
	}
}

// PublicUser is what the verifier hands to other services.
type PublicUser struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"role"`
}

// HasRole reports whether the user holds any of roles.
func (u *PublicUser) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
