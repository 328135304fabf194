package ports

import (
	"context"

	"github.com/mindnest/auth-service/internal/core/domain"
)

// AccountRepository defines persistence operations for accounts.
// Every lookup only sees active accounts.
type AccountRepository interface {
	// Insert stores a new account and returns the authoritative record,
	// including the store-assigned ID. Returns domain.ErrDuplicateEmail when
	// an active account with the same email exists.
	Insert(ctx context.Context, account domain.NewAccount) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	TouchUpdatedAt(ctx context.Context, id string) error
	ListActive(ctx context.Context, limit, offset int) ([]domain.Account, error)
	CountActive(ctx context.Context) (int64, error)
}
