package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Role is the permission level of a user within a business.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleOwner      Role = "owner"
	RoleEmployee   Role = "employee"
)

var (
	// ErrUnauthorized is returned when a request carries no valid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the principal lacks the required role or
	// is not bound to a business.
	ErrForbidden = errors.New("forbidden")
)

// APIKeyInfo holds the identity bound to a stored API key.
type APIKeyInfo struct {
	ID         string
	KeyHash    string
	UserID     string
	BusinessID string
	Role       Role
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Principal is the authenticated caller of a request.
type Principal struct {
	KeyID      string
	UserID     string
	BusinessID string
	Role       Role
}

// Require checks that the principal is bound to a business and holds one of
// roles. An empty roles list accepts any role.
func (p Principal) Require(roles ...Role) error {
	if p.BusinessID == "" {
		return errors.Wrap(ErrForbidden, "principal has no business")
	}
	if len(roles) > 0 && !slices.Contains(roles, p.Role) {
		return errors.Wrapf(ErrForbidden, "role %q not allowed", p.Role)
	}
	return nil
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
