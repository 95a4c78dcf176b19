package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PermissionCache stores resolved permission sets per principal for a short
// TTL. Implementations must treat a miss and an unavailable backend the
// same way: return ErrCacheMiss and let the resolver hit the graph.
type PermissionCache interface {
	Get(ctx context.Context, userID string) ([]string, error)
	Set(ctx context.Context, userID string, keys []string, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}

// ErrCacheMiss signals the cache holds no entry for the principal.
var ErrCacheMiss = errors.New("auth: permission cache miss")

// Resolver computes a principal's effective permission set: the union of
// permissions granted to every role assigned to the principal. No negative
// permissions, no precedence.
type Resolver struct {
	roles    RoleStore
	cache    PermissionCache
	cacheTTL time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPermissionCache enables short-TTL caching of resolved sets. The cache
// is invalidated on role (re)assignment for the affected principal.
func WithPermissionCache(cache PermissionCache, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if cache != nil && ttl > 0 {
			r.cache = cache
			r.cacheTTL = ttl
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(roles RoleStore, opts ...ResolverOption) (*Resolver, error) {
	if roles == nil {
		return nil, errors.New("auth: role store is required")
	}
	r := &Resolver{roles: roles}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// EffectivePermissions returns the union of permission keys over all roles
// assigned to the principal.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) (map[string]struct{}, error) {
	if r.cache != nil {
		if keys, err := r.cache.Get(ctx, userID); err == nil {
			return toSet(keys), nil
		}
	}
	roles, err := r.roles.RolesOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	set := make(map[string]struct{})
	for _, role := range roles {
		keys, err := r.roles.PermissionsOf(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("load permissions of role %s: %w", role.Name, err)
		}
		for _, key := range keys {
			set[key] = struct{}{}
		}
	}
	if r.cache != nil {
		// Best effort; a failed cache write never fails the resolution.
		_ = r.cache.Set(ctx, userID, fromSet(set), r.cacheTTL)
	}
	return set, nil
}

// Assign grants a role to a principal and drops any cached set for it.
func (r *Resolver) Assign(ctx context.Context, userID, roleID string) error {
	if err := r.roles.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

// Unassign revokes a role from a principal and drops any cached set.
func (r *Resolver) Unassign(ctx context.Context, userID, roleID string) error {
	if err := r.roles.UnassignRole(ctx, userID, roleID); err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

func (r *Resolver) invalidate(ctx context.Context, userID string) {
	if r.cache != nil {
		_ = r.cache.Invalidate(ctx, userID)
	}
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func fromSet(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
