// Package memory provides an in-process account store for tests and local
// development. It is not shared between replicas.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindnest/auth-service/internal/core/domain"
)

// AccountRepository keeps accounts in a mutex-guarded map.
type AccountRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Account
	byEmail map[string]string // active accounts only
	now     func() time.Time
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[string]*domain.Account),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Insert checks and claims the email under one lock, so concurrent inserts
// of the same email yield exactly one success.
func (r *AccountRepository) Insert(_ context.Context, in domain.NewAccount) (*domain.Account, error) {
	email := domain.NormalizeEmail(in.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return nil, domain.ErrDuplicateEmail
	}

	now := r.now()
	acc := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[acc.ID] = acc
	r.byEmail[email] = acc.ID

	clone := *acc
	return &clone, nil
}

func (r *AccountRepository) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return r.activeLocked(id)
}

func (r *AccountRepository) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked(id)
}

func (r *AccountRepository) activeLocked(id string) (*domain.Account, error) {
	acc, ok := r.byID[id]
	if !ok || !acc.IsActive {
		return nil, domain.ErrAccountNotFound
	}
	clone := *acc
	return &clone, nil
}

func (r *AccountRepository) TouchUpdatedAt(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok || !acc.IsActive {
		return domain.ErrAccountNotFound
	}
	acc.UpdatedAt = r.now()
	return nil
}

// ListActive returns active accounts, newest first.
func (r *AccountRepository) ListActive(_ context.Context, limit, offset int) ([]domain.Account, error) {
	r.mu.RLock()
	active := make([]domain.Account, 0, len(r.byEmail))
	for _, id := range r.byEmail {
		active = append(active, *r.byID[id])
	}
	r.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})

	if offset >= len(active) {
		return []domain.Account{}, nil
	}
	end := len(active)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return active[offset:end], nil
}

func (r *AccountRepository) CountActive(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byEmail)), nil
}

// Deactivate soft-deletes an account, freeing its email for a new account.
func (r *AccountRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok || !acc.IsActive {
		return domain.ErrAccountNotFound
	}
	acc.IsActive = false
	acc.UpdatedAt = r.now()
	delete(r.byEmail, acc.Email)
	return nil
}

// Ping always succeeds.
func (r *AccountRepository) Ping(context.Context) error { return nil }
