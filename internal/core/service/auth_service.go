package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mindnest/auth-service/internal/api/metrics"
	"github.com/mindnest/auth-service/internal/core/domain"
	"github.com/mindnest/auth-service/internal/core/ports"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100

	// timingPlaceholder is hashed once so unknown-email logins pay the same
	// bcrypt cost as wrong-password logins.
	timingPlaceholder = "mindnest-auth-placeholder"
)

// AuthService implements registration, login, token refresh and the
// administrative account operations.
type AuthService struct {
	repo       ports.AccountRepository
	hasher     ports.PasswordHasher
	tokens     ports.TokenIssuer
	propagator ports.IdentityPropagator
	log        zerolog.Logger

	placeholderDigest string
}

// Ensure AuthService satisfies ports.AuthService at compile time.
var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(
	repo ports.AccountRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	propagator ports.IdentityPropagator,
	log zerolog.Logger,
) *AuthService {
	placeholder, err := hasher.Hash(timingPlaceholder)
	if err != nil {
		log.Warn().Err(err).Msg("failed to prepare login placeholder digest")
	}
	return &AuthService{
		repo:              repo,
		hasher:            hasher,
		tokens:            tokens,
		propagator:        propagator,
		log:               log,
		placeholderDigest: placeholder,
	}
}

// Register creates a user or psychiatrist account, notifies downstream
// services and returns a fresh token pair. An empty role means user.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.SelfAssignable() {
		return nil, domain.NewValidationError("role", `Role must be either "user" or "psychiatrist"`)
	}

	acc, err := s.create(ctx, in.Email, in.Password, role)
	if err != nil {
		return nil, err
	}
	s.propagator.Propagate(*acc, ports.TriggerRegister)

	pair, err := s.issue(acc)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", acc.ID).Str("role", string(acc.Role)).Msg("account registered")
	return &ports.AuthResult{Account: acc, Tokens: pair}, nil
}

// Login verifies credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	acc, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			s.hasher.Verify(password, s.placeholderDigest)
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, domain.ErrInvalidCredentials
		}
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !s.hasher.Verify(password, acc.PasswordHash) {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.repo.TouchUpdatedAt(ctx, acc.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", acc.ID).Msg("failed to record login time")
	}

	// Backfills downstream records missed at registration.
	s.propagator.Propagate(*acc, ports.TriggerLogin)

	pair, err := s.issue(acc)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return &ports.AuthResult{Account: acc, Tokens: pair}, nil
}

// Refresh exchanges a valid refresh token for a new pair. Access tokens are
// rejected with domain.ErrWrongTokenType.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if claims.Kind != domain.TokenRefresh {
		return domain.TokenPair{}, domain.ErrWrongTokenType
	}

	acc, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.TokenPair{}, fmt.Errorf("%w: subject no longer active", domain.ErrInvalidToken)
		}
		return domain.TokenPair{}, err
	}
	return s.issue(acc)
}

// Account returns the active account with the given id.
func (s *AuthService) Account(ctx context.Context, id string) (*domain.Account, error) {
	return s.repo.FindByID(ctx, id)
}

// CreateAdmin creates an account that always holds the admin role.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) (*domain.Account, error) {
	acc, err := s.create(ctx, email, password, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.propagator.Propagate(*acc, ports.TriggerAdminCreate)
	s.log.Info().Str("user_id", acc.ID).Msg("admin account created")
	return acc, nil
}

// ListAccounts returns one page of active accounts. The limit is clamped
// to [1, 100] with 50 as default.
func (s *AuthService) ListAccounts(ctx context.Context, limit, offset int) (*domain.AccountPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	accounts, err := s.repo.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		accounts[i].PasswordHash = ""
	}
	return &domain.AccountPage{Accounts: accounts, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *AuthService) create(ctx context.Context, email, password string, role domain.Role) (*domain.Account, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(string(role), "error").Inc()
		return nil, err
	}

	acc, err := s.repo.Insert(ctx, domain.NewAccount{
		Email:        domain.NormalizeEmail(email),
		PasswordHash: digest,
		Role:         role,
	})
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrDuplicateEmail) {
			result = "duplicate"
		}
		metrics.RegistrationsTotal.WithLabelValues(string(role), result).Inc()
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues(string(role), "success").Inc()
	return acc, nil
}

func (s *AuthService) issue(acc *domain.Account) (domain.TokenPair, error) {
	pair, err := s.tokens.IssuePair(acc)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(domain.TokenAccess)).Inc()
	metrics.TokensIssuedTotal.WithLabelValues(string(domain.TokenRefresh)).Inc()
	return pair, nil
}
