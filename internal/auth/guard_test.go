package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type guardFixture struct {
	store    *MemStore
	issuer   *Issuer
	service  *Service
	resolver *Resolver
	guard    *Guard
	clock    *time.Time
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	store := NewMemStore()
	now := time.Now().UTC()
	clock := &now

	iss, err := NewIssuer(store, []byte("test-secret"), testIssuerName,
		WithIssuerClock(func() time.Time { return *clock }))
	require.NoError(t, err)
	svc, err := NewService(store, NewHasher(bcrypt.MinCost), iss)
	require.NoError(t, err)
	resolver, err := NewResolver(store)
	require.NoError(t, err)
	guard, err := NewGuard(iss, svc, resolver)
	require.NoError(t, err)

	return &guardFixture{store: store, issuer: iss, service: svc, resolver: resolver, guard: guard, clock: clock}
}

func TestAuthorizeHappyPath(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	session, err := f.service.Register(ctx, "0900000001", "secret123", Profile{})
	require.NoError(t, err)

	manager := seedRole(t, f.store, "manager", PermBookingsRead)
	require.NoError(t, f.resolver.Assign(ctx, session.UserID, manager.ID))

	principal, err := f.guard.Authorize(ctx, session.AccessToken, PermBookingsRead)
	require.NoError(t, err)
	require.Equal(t, session.UserID, principal.ID)
}

func TestAuthorizeNoRequiredPermissionsAllows(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	session, err := f.service.Register(ctx, "0900000001", "secret123", Profile{})
	require.NoError(t, err)

	principal, err := f.guard.Authorize(ctx, session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, session.UserID, principal.ID)
}

func TestAuthorizeExpiredTokenAlwaysUnauthenticated(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	session, err := f.service.Register(ctx, "0900000001", "secret123", Profile{})
	require.NoError(t, err)

	manager := seedRole(t, f.store, "manager", PermBookingsRead)
	require.NoError(t, f.resolver.Assign(ctx, session.UserID, manager.ID))

	*f.clock = f.clock.Add(time.Hour)
	_, err = f.guard.Authorize(ctx, session.AccessToken, PermBookingsRead)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorizeGarbageTokenUnauthenticated(t *testing.T) {
	f := newGuardFixture(t)
	_, err := f.guard.Authorize(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorizeDeactivatedPrincipalUnauthenticated(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	session, err := f.service.Register(ctx, "0900000001", "secret123", Profile{})
	require.NoError(t, err)
	require.NoError(t, f.service.Deactivate(ctx, session.UserID))

	// The access token is still cryptographically valid; validation of the
	// principal's current state rejects it anyway.
	_, err = f.guard.Authorize(ctx, session.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorizeConjunctionNoPartialCredit(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	session, err := f.service.Register(ctx, "0900000001", "secret123", Profile{})
	require.NoError(t, err)

	manager := seedRole(t, f.store, "manager", PermBookingsRead)
	require.NoError(t, f.resolver.Assign(ctx, session.UserID, manager.ID))

	_, err = f.guard.Authorize(ctx, session.AccessToken, PermBookingsRead, PermBookingsWrite)
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	require.Equal(t, []string{PermBookingsWrite}, forbidden.Missing)

	require.NoError(t, f.store.SetRolePermissions(ctx, manager.ID, []string{PermBookingsRead, PermBookingsWrite}))
	_, err = f.guard.Authorize(ctx, session.AccessToken, PermBookingsRead, PermBookingsWrite)
	require.NoError(t, err)
}

func TestAuthorizeForbiddenBeforeAssignmentAllowedAfter(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	session, err := f.service.Register(ctx, "0900000001", "secret123", Profile{})
	require.NoError(t, err)
	manager := seedRole(t, f.store, "manager", PermBookingsRead)

	_, err = f.guard.Authorize(ctx, session.AccessToken, PermBookingsRead)
	require.True(t, IsForbidden(err))

	require.NoError(t, f.resolver.Assign(ctx, session.UserID, manager.ID))
	_, err = f.guard.Authorize(ctx, session.AccessToken, PermBookingsRead)
	require.NoError(t, err)
}

type failingRoleStore struct {
	RoleStore
}

func (f *failingRoleStore) RolesOf(context.Context, string) ([]Role, error) {
	return nil, errors.New("store unavailable")
}

func TestAuthorizeFailsClosedOnStoreError(t *testing.T) {
	store := NewMemStore()
	iss, err := NewIssuer(store, []byte("test-secret"), testIssuerName)
	require.NoError(t, err)
	svc, err := NewService(store, NewHasher(bcrypt.MinCost), iss)
	require.NoError(t, err)
	resolver, err := NewResolver(&failingRoleStore{RoleStore: store})
	require.NoError(t, err)
	guard, err := NewGuard(iss, svc, resolver)
	require.NoError(t, err)

	ctx := context.Background()
	session, err := svc.Register(ctx, "0900000001", "secret123", Profile{})
	require.NoError(t, err)

	_, err = guard.Authorize(ctx, session.AccessToken, PermBookingsRead)
	require.Error(t, err)
	require.False(t, IsForbidden(err))
	require.NotErrorIs(t, err, ErrUnauthenticated)
}
