package auth

import (
	"context"
	"time"
)

// IdentityStore is the persistence contract for user identity, password
// hash and refresh-token state. Implementations must enforce phone and
// email uniqueness and return ErrNotFound for missing records.
type IdentityStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// UpdateRefreshToken overwrites the user's single refresh-token slot.
	// Empty token and zero expiry clear the slot (logout).
	UpdateRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error

	// RotateRefreshToken atomically replaces the stored refresh token with
	// next, but only for an active user whose current stored token equals
	// current and has not expired as of now. At most one concurrent caller
	// wins; losers get ErrNotFound. Returns the matched user.
	RotateRefreshToken(ctx context.Context, current, next string, expiresAt time.Time, now time.Time) (*User, error)

	SetActive(ctx context.Context, id string, active bool) error
}

// RoleStore is the read/write contract for the role-permission graph.
type RoleStore interface {
	CreateRole(ctx context.Context, role *Role) error
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	RolesOf(ctx context.Context, userID string) ([]Role, error)
	PermissionsOf(ctx context.Context, roleID string) ([]string, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error
	SetRolePermissions(ctx context.Context, roleID string, keys []string) error
	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
}
