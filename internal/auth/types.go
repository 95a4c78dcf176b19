package auth

import "time"

// User is a principal: a customer or staff account identified by phone
// number (and optionally email). At most one live refresh token exists per
// user; RefreshToken/RefreshExpiresAt are overwritten on every login and
// rotation and cleared on logout.
type User struct {
	ID               string    `json:"id"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email,omitempty"`
	FullName         string    `json:"full_name,omitempty"`
	PasswordHash     string    `json:"-"`
	Active           bool      `json:"active"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Role groups permissions under a name ("manager", "photographer").
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an atomic "resource:action" capability. The catalog is
// reference data; additions happen via migrations, not the API.
type Permission struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment links a user to a role.
type Assignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the result of register, login and refresh: a signed access
// token and the opaque refresh token that replaces any previous one.
type Session struct {
	UserID           string    `json:"user_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Profile carries the optional fields supplied at registration.
type Profile struct {
	Email    string
	FullName string
}
