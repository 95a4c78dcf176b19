package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Guard is the single enforcement point wrapped around every protected
// operation. It is a pure decision function: storage reads only, no shared
// mutable state, safe to call concurrently per request.
type Guard struct {
	tokens   *Issuer
	sessions *Service
	resolver *Resolver
}

// NewGuard constructs a Guard.
func NewGuard(tokens *Issuer, sessions *Service, resolver *Resolver) (*Guard, error) {
	if tokens == nil || sessions == nil || resolver == nil {
		return nil, errors.New("auth: token issuer, session service and resolver are required")
	}
	return &Guard{tokens: tokens, sessions: sessions, resolver: resolver}, nil
}

// Authorize validates the access token, confirms the principal is still
// active, and requires every permission in required to be present in the
// principal's effective set. Token and principal failures collapse into
// ErrUnauthenticated; missing permissions yield a ForbiddenError carrying
// the missing keys. Storage failures propagate as wrapped internal errors:
// the caller must deny, never allow.
func (g *Guard) Authorize(ctx context.Context, accessToken string, required ...string) (PrincipalSummary, error) {
	claims, err := g.tokens.VerifyAccess(accessToken)
	if err != nil {
		return PrincipalSummary{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	principal, err := g.sessions.Validate(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return PrincipalSummary{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		// Storage failure: fail closed with an internal error.
		return PrincipalSummary{}, fmt.Errorf("validate principal: %w", err)
	}
	if len(required) == 0 {
		return principal, nil
	}
	effective, err := g.resolver.EffectivePermissions(ctx, principal.ID)
	if err != nil {
		return PrincipalSummary{}, fmt.Errorf("resolve permissions: %w", err)
	}
	var missing []string
	for _, key := range required {
		if _, ok := effective[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return PrincipalSummary{}, &ForbiddenError{Missing: missing}
	}
	return principal, nil
}
