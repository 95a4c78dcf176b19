package auth

import (
	"context"
	"sync"
	"time"

	"shutterdesk.app/internal/ids"
)

// MemStore is an in-memory implementation of IdentityStore and RoleStore,
// used by tests and by development mode when no database is configured.
// All methods are safe for concurrent use.
type MemStore struct {
	mu          sync.Mutex
	users       map[string]*User
	roles       map[string]*Role
	perms       map[string]Permission
	grants      map[string]map[string]struct{}
	assignments map[string]map[string]struct{}
}

var (
	_ IdentityStore = (*MemStore)(nil)
	_ RoleStore     = (*MemStore)(nil)
)

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*User),
		roles:       make(map[string]*Role),
		perms:       make(map[string]Permission),
		grants:      make(map[string]map[string]struct{}),
		assignments: make(map[string]map[string]struct{}),
	}
}

// Identity store -----------------------------------------------------------

func (m *MemStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Phone == u.Phone {
			return ErrDuplicateIdentity
		}
		if u.Email != "" && existing.Email == u.Email {
			return ErrDuplicateIdentity
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemStore) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemStore) FindByPhone(_ context.Context, phone string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email != "" && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) UpdateRefreshToken(_ context.Context, id, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = token
	u.RefreshExpiresAt = expiresAt
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) RotateRefreshToken(_ context.Context, current, next string, expiresAt time.Time, now time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.RefreshToken == "" || u.RefreshToken != current {
			continue
		}
		if !u.Active || !u.RefreshExpiresAt.After(now) {
			return nil, ErrNotFound
		}
		u.RefreshToken = next
		u.RefreshExpiresAt = expiresAt
		u.UpdatedAt = now
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Role store ---------------------------------------------------------------

func (m *MemStore) CreateRole(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return ErrDuplicateIdentity
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *MemStore) FindRoleByName(_ context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) RolesOf(_ context.Context, userID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for roleID := range m.assignments[userID] {
		if role, ok := m.roles[roleID]; ok {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (m *MemStore) PermissionsOf(_ context.Context, roleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key := range m.grants[roleID] {
		out = append(out, key)
	}
	return out, nil
}

func (m *MemStore) AssignRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	if m.assignments[userID] == nil {
		m.assignments[userID] = make(map[string]struct{})
	}
	m.assignments[userID][roleID] = struct{}{}
	return nil
}

func (m *MemStore) UnassignRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments[userID], roleID)
	return nil
}

func (m *MemStore) SetRolePermissions(_ context.Context, roleID string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	grant := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		grant[key] = struct{}{}
	}
	m.grants[roleID] = grant
	return nil
}

func (m *MemStore) EnsurePermissions(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.perms[p.Key]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		m.perms[p.Key] = p
	}
	return nil
}

func (m *MemStore) ListPermissions(_ context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	return out, nil
}
