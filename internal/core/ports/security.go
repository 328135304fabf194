package ports

import "github.com/mindnest/auth-service/internal/core/domain"

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify returns false for a wrong password or a malformed digest.
	Verify(plaintext, digest string) bool
}

// TokenVerifier validates tokens. Verify is the only authoritative check.
type TokenVerifier interface {
	Verify(token string) (*domain.Claims, error)
}

// TokenIssuer signs tokens for an account.
type TokenIssuer interface {
	TokenVerifier
	IssuePair(account *domain.Account) (domain.TokenPair, error)
}
