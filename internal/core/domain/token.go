package domain

import (
	"context"
	"time"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Claims is the decoded payload of a signed token.
// Role is empty for refresh tokens; it is re-resolved from the store.
type Claims struct {
	ID        string
	Subject   string
	Email     string
	Role      Role
	Kind      TokenKind
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is returned to the caller after register, login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    string
}

// Identity is the request-scoped view of a verified access token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by the authorization gate.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
