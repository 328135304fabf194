package ports

import (
	"context"

	"github.com/mindnest/auth-service/internal/core/domain"
)

// RegisterInput carries a public registration request.
type RegisterInput struct {
	Email    string
	Password string
	Role     domain.Role
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Account *domain.Account
	Tokens  domain.TokenPair
}

// AuthService defines the authentication use cases.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Account(ctx context.Context, id string) (*domain.Account, error)
	CreateAdmin(ctx context.Context, email, password string) (*domain.Account, error)
	ListAccounts(ctx context.Context, limit, offset int) (*domain.AccountPage, error)
}
