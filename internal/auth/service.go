package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shutterdesk.app/internal/ids"
)

// Service orchestrates the session lifecycle: registration, login, refresh,
// logout, password changes and principal validation. It holds no mutable
// state of its own; all state lives in the injected stores.
type Service struct {
	users  IdentityStore
	hasher *Hasher
	tokens *Issuer
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source, for tests.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(users IdentityStore, hasher *Hasher, tokens *Issuer, opts ...ServiceOption) (*Service, error) {
	if users == nil || hasher == nil || tokens == nil {
		return nil, errors.New("auth: users store, hasher and token issuer are required")
	}
	svc := &Service{users: users, hasher: hasher, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// PrincipalSummary is the authoritative view of a principal returned by
// Validate, consumed by the guard after token verification.
type PrincipalSummary struct {
	ID       string `json:"id"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Register creates an active principal and issues its first token pair.
// Fails with ErrDuplicateIdentity when the phone or the optional email is
// already taken.
func (s *Service) Register(ctx context.Context, phone, password string, profile Profile) (Session, error) {
	phone = normalizePhone(phone)
	if phone == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	email := normalizeEmail(profile.Email)

	if _, err := s.users.FindByPhone(ctx, phone); err == nil {
		return Session{}, ErrDuplicateIdentity
	} else if !errors.Is(err, ErrNotFound) {
		return Session{}, fmt.Errorf("lookup phone: %w", err)
	}
	if email != "" {
		if _, err := s.users.FindByEmail(ctx, email); err == nil {
			return Session{}, ErrDuplicateIdentity
		} else if !errors.Is(err, ErrNotFound) {
			return Session{}, fmt.Errorf("lookup email: %w", err)
		}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Phone:        phone,
		Email:        email,
		FullName:     strings.TrimSpace(profile.FullName),
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return Session{}, ErrDuplicateIdentity
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	return s.tokens.Issue(ctx, user.ID, user.Phone)
}

// Login verifies credentials and issues a fresh token pair, superseding any
// previous session's refresh token. Unknown identity and wrong password
// produce the identical ErrInvalidCredentials so callers cannot enumerate
// accounts.
func (s *Service) Login(ctx context.Context, phone, password string) (Session, error) {
	phone = normalizePhone(phone)
	if phone == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	if !user.Active {
		return Session{}, ErrAccountInactive
	}
	return s.tokens.Issue(ctx, user.ID, user.Phone)
}

// Refresh redeems a refresh token for a new pair. The redeemed token is
// single-use; concurrent redemptions of the same value succeed at most once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	session, _, err := s.tokens.Redeem(ctx, refreshToken)
	return session, err
}

// Logout clears the stored refresh token, returning the principal to the
// anonymous state. Already-issued access tokens stay valid until their own
// expiry; that window is bounded by the access-token lifetime.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrPrincipalNotFound
	}
	if err := s.users.UpdateRefreshToken(ctx, userID, "", time.Time{}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password, stores a new hash, and
// clears the refresh slot so other sessions must re-authenticate.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidCredentials
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(user.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("store password hash: %w", err)
	}
	if err := s.users.UpdateRefreshToken(ctx, user.ID, "", time.Time{}); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// Validate returns the current authoritative state of a principal. Missing
// and deactivated principals both fail with ErrPrincipalNotFound, covering
// accounts deactivated after an access token was issued.
func (s *Service) Validate(ctx context.Context, userID string) (PrincipalSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return PrincipalSummary{}, ErrPrincipalNotFound
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PrincipalSummary{}, ErrPrincipalNotFound
		}
		return PrincipalSummary{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		return PrincipalSummary{}, ErrPrincipalNotFound
	}
	return PrincipalSummary{
		ID:       user.ID,
		Phone:    user.Phone,
		Email:    user.Email,
		FullName: user.FullName,
	}, nil
}

// Deactivate marks a principal inactive. Verification-time checks make all
// of its tokens unusable without eager revocation.
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	if err := s.users.SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

func normalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
