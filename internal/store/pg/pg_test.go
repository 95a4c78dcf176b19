package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"shutterdesk.app/internal/auth"
)

func userRows(id, phone, refresh string, refreshExp time.Time, active bool) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "phone", "email", "full_name", "password_hash", "active",
		"refresh_token", "refresh_expires_at", "created_at", "updated_at",
	}).AddRow(id, phone, "", "", "hash", active, refresh, refreshExp, now, now)
}

func TestFindByPhone(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select .* from users where phone =").
		WithArgs("0900000001").
		WillReturnRows(userRows("u1", "0900000001", "", time.Unix(0, 0).UTC(), true))

	store := NewIdentityStore(db)
	user, err := store.FindByPhone(context.Background(), "0900000001")
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user id: %s", user.ID)
	}
	if !user.RefreshExpiresAt.IsZero() {
		t.Fatalf("expected cleared refresh expiry, got %v", user.RefreshExpiresAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select .* from users where id =").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewIdentityStore(db)
	if _, err := store.FindByID(context.Background(), "missing"); err != auth.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateRefreshTokenWinner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	exp := now.Add(7 * 24 * time.Hour)
	mock.ExpectQuery("update users set refresh_token = .* where refresh_token = .* and refresh_expires_at > .* and active").
		WithArgs("old-token", "new-token", exp, now).
		WillReturnRows(userRows("u1", "0900000001", "new-token", exp, true))

	store := NewIdentityStore(db)
	user, err := store.RotateRefreshToken(context.Background(), "old-token", "new-token", exp, now)
	if err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	if user.RefreshToken != "new-token" {
		t.Fatalf("unexpected refresh token: %s", user.RefreshToken)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotateRefreshTokenLoserGetsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("update users set refresh_token = ").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewIdentityStore(db)
	if _, err := store.RotateRefreshToken(context.Background(), "stale", "next", now.Add(time.Hour), now); err != auth.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRefreshTokenClearsSlot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update users set refresh_token = nullif").
		WithArgs("u1", "", time.Unix(0, 0).UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewIdentityStore(db)
	if err := store.UpdateRefreshToken(context.Background(), "u1", "", time.Time{}); err != nil {
		t.Fatalf("UpdateRefreshToken: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdatePasswordHashMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update users set password_hash").
		WithArgs("missing", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewIdentityStore(db)
	if err := store.UpdatePasswordHash(context.Background(), "missing", "hash"); err != auth.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRolesOfAndPermissionsOf(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("select r.id, r.name").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow("r1", "manager", "", now, now))
	mock.ExpectQuery("select p.key from permissions").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow(auth.PermBookingsRead).
			AddRow(auth.PermBookingsWrite))

	store := NewRoleStore(db)
	roles, err := store.RolesOf(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RolesOf: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "manager" {
		t.Fatalf("unexpected roles: %v", roles)
	}
	keys, err := store.PermissionsOf(context.Background(), "r1")
	if err != nil {
		t.Fatalf("PermissionsOf: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestSetRolePermissionsReplacesGrants(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("delete from role_permissions").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("r1", auth.PermBookingsRead).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := NewRoleStore(db)
	if err := store.SetRolePermissions(context.Background(), "r1", []string{auth.PermBookingsRead}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
