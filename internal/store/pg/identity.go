package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"shutterdesk.app/internal/auth"
)

var _ auth.IdentityStore = (*IdentityStore)(nil)

// IdentityStore implements auth.IdentityStore on PostgreSQL.
type IdentityStore struct {
	db *sql.DB
}

// NewIdentityStore constructs an IdentityStore on an open handle.
func NewIdentityStore(db *sql.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

const userColumns = `id, phone, coalesce(email, ''), coalesce(full_name, ''), password_hash, active,
	coalesce(refresh_token, ''), coalesce(refresh_expires_at, 'epoch'::timestamptz), created_at, updated_at`

func (s *IdentityStore) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, phone, email, full_name, password_hash, active, created_at, updated_at)
		 values($1, $2, nullif($3, ''), nullif($4, ''), $5, $6, $7, $8)`,
		u.ID, u.Phone, u.Email, u.FullName, u.PasswordHash, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return auth.ErrDuplicateIdentity
	}
	return err
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *IdentityStore) FindByPhone(ctx context.Context, phone string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where phone = $1`, phone))
}

func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
}

func (s *IdentityStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx,
		`update users set password_hash = $2, updated_at = now() where id = $1`, id, hash)
}

func (s *IdentityStore) UpdateRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	return s.execOne(ctx,
		`update users set refresh_token = nullif($2, ''), refresh_expires_at = nullif($3, 'epoch'::timestamptz), updated_at = now()
		 where id = $1`,
		id, token, normalizeExpiry(expiresAt))
}

// RotateRefreshToken swaps the stored refresh token in a single conditional
// UPDATE so concurrent redemptions of the same value serialize in the
// database: one row matches for the winner, none for the losers.
func (s *IdentityStore) RotateRefreshToken(ctx context.Context, current, next string, expiresAt time.Time, now time.Time) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`update users set refresh_token = $2, refresh_expires_at = $3, updated_at = now()
		 where refresh_token = $1 and refresh_expires_at > $4 and active
		 returning `+userColumns,
		current, next, expiresAt, now))
}

func (s *IdentityStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.execOne(ctx,
		`update users set active = $2, updated_at = now() where id = $1`, id, active)
}

func (s *IdentityStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *IdentityStore) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Phone, &u.Email, &u.FullName, &u.PasswordHash, &u.Active,
		&u.RefreshToken, &u.RefreshExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if u.RefreshExpiresAt.Equal(time.Unix(0, 0).UTC()) {
		u.RefreshExpiresAt = time.Time{}
	}
	return &u, nil
}

func normalizeExpiry(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
