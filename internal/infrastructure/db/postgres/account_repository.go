package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindnest/auth-service/internal/core/domain"
	"github.com/mindnest/auth-service/internal/core/ports"
)

const uniqueViolation = "23505"

// Ensure AccountRepository satisfies ports.AccountRepository at compile time.
var _ ports.AccountRepository = (*AccountRepository)(nil)

// AccountRepository provides Postgres-backed persistence for accounts.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// Config holds pool settings for NewAccountRepository.
type Config struct {
	URL            string
	MaxConns       int32
	ConnectTimeout time.Duration
}

// NewAccountRepository opens a pool, verifies connectivity and bootstraps
// the schema.
func NewAccountRepository(ctx context.Context, cfg Config) (*AccountRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &AccountRepository{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close releases database resources.
func (r *AccountRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping checks that a connection can be acquired.
func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *AccountRepository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'user',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_active_email_idx ON users (email) WHERE is_active;`,
		`CREATE INDEX IF NOT EXISTS users_role_idx ON users (role);`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

const accountColumns = `id, email, password_hash, role, is_active, created_at, updated_at`

// Insert relies on the unique index for atomic duplicate detection.
func (r *AccountRepository) Insert(ctx context.Context, in domain.NewAccount) (*domain.Account, error) {
	const query = `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING ` + accountColumns
	row := r.pool.QueryRow(ctx, query, domain.NormalizeEmail(in.Email), in.PasswordHash, string(in.Role))
	acc, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%w: insert account: %w", domain.ErrStoreUnavailable, err)
	}
	return acc, nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE email = $1 AND is_active`
	return r.findOne(ctx, query, domain.NormalizeEmail(email))
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, domain.ErrAccountNotFound
	}
	const query = `SELECT ` + accountColumns + ` FROM users WHERE id = $1 AND is_active`
	return r.findOne(ctx, query, n)
}

func (r *AccountRepository) findOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: find account: %w", domain.ErrStoreUnavailable, err)
	}
	return acc, nil
}

func (r *AccountRepository) TouchUpdatedAt(ctx context.Context, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.ErrAccountNotFound
	}
	tag, err := r.pool.Exec(ctx, `UPDATE users SET updated_at = NOW() WHERE id = $1 AND is_active`, n)
	if err != nil {
		return fmt.Errorf("%w: touch account: %w", domain.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ListActive returns active accounts, newest first, without password hashes.
func (r *AccountRepository) ListActive(ctx context.Context, limit, offset int) ([]domain.Account, error) {
	const query = `
		SELECT id, email, '' AS password_hash, role, is_active, created_at, updated_at
		FROM users
		WHERE is_active
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, limit)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list accounts: %w", domain.ErrStoreUnavailable, err)
	}
	return accounts, nil
}

func (r *AccountRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count accounts: %w", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		acc  domain.Account
		id   int64
		role string
	)
	if err := row.Scan(&id, &acc.Email, &acc.PasswordHash, &role, &acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}
	acc.ID = strconv.FormatInt(id, 10)
	acc.Role = domain.Role(role)
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return &acc, nil
}
