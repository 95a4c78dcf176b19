package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	refreshTokenBytes = 64
)

// Claims carries the verified content of an access token.
type Claims struct {
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints access/refresh token pairs and redeems refresh tokens.
// Access tokens are HS256 JWTs; refresh tokens are opaque random secrets
// persisted in the user's single refresh slot.
type Issuer struct {
	users      IdentityStore
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithAccessTTL overrides the access-token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh-token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// WithIssuerClock overrides the time source, for tests.
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. The signing secret is read-only after
// construction and safe for concurrent use.
func NewIssuer(users IdentityStore, secret []byte, issuerName string, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if strings.TrimSpace(issuerName) == "" {
		return nil, errors.New("auth: issuer name is required")
	}
	iss := &Issuer{
		users:      users,
		secret:     secret,
		issuer:     issuerName,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Issue signs a fresh access token for the user and installs a new refresh
// token, overwriting any previous one.
func (i *Issuer) Issue(ctx context.Context, userID, phone string) (Session, error) {
	now := i.now().UTC()
	access, accessExp, err := i.signAccess(userID, phone, now)
	if err != nil {
		return Session{}, err
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return Session{}, err
	}
	refreshExp := now.Add(i.refreshTTL)
	if err := i.users.UpdateRefreshToken(ctx, userID, refresh, refreshExp); err != nil {
		return Session{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return Session{
		UserID:           userID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature and expiry without touching storage.
// Fails with ErrExpiredToken or ErrInvalidSignature.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSignature
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSignature
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidSignature
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// Redeem exchanges a live refresh token for a fresh session. The swap of
// the stored token is a single conditional write, so a token redeemed
// concurrently succeeds for exactly one caller; the rest observe
// ErrInvalidRefreshToken. Redeemed tokens are therefore single-use.
func (i *Issuer) Redeem(ctx context.Context, refreshToken string) (Session, *User, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, nil, ErrInvalidRefreshToken
	}
	next, err := newRefreshToken()
	if err != nil {
		return Session{}, nil, err
	}
	now := i.now().UTC()
	refreshExp := now.Add(i.refreshTTL)
	user, err := i.users.RotateRefreshToken(ctx, refreshToken, next, refreshExp, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, nil, ErrInvalidRefreshToken
		}
		return Session{}, nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	access, accessExp, err := i.signAccess(user.ID, user.Phone, now)
	if err != nil {
		return Session{}, nil, err
	}
	return Session{
		UserID:           user.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     next,
		RefreshExpiresAt: refreshExp,
	}, user, nil
}

// AccessTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) signAccess(userID, phone string, now time.Time) (string, time.Time, error) {
	exp := now.Add(i.accessTTL)
	claims := Claims{
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
