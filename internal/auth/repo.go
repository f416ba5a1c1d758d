package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbank-platform/openbank/internal/platform/db"
	"github.com/openbank-platform/openbank/internal/security"
	"github.com/openbank-platform/openbank/internal/shared"
)

// Repository defines persistence for accounts and their security records.
// GetSecurity followed by SaveSecurity is a read-modify-write; the caller
// holds the per-account lock around the pair.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, principalID uuid.UUID, hash string) error

	// RotateCredentials stores the new hash and the updated security
	// record atomically so a crash cannot leave the history out of step
	// with the live credential.
	RotateCredentials(ctx context.Context, principalID uuid.UUID, hash string, record *security.Account) error

	GetSecurity(ctx context.Context, principalID uuid.UUID) (*security.Account, error)
	SaveSecurity(ctx context.Context, record *security.Account) error
}

const uniqueViolation = "23505"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account := &Account{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, is_active, created_at, updated_at
		FROM accounts WHERE email = $1`, email).
		Scan(&account.ID, &account.Email, &account.PasswordHash, &account.IsActive,
			&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find account: %w", err)
	}
	return account, nil
}

// CreateAccount inserts a new account record.
func (r *PGRepository) CreateAccount(ctx context.Context, account *Account) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		account.ID, account.Email, account.PasswordHash, account.IsActive, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrDuplicateAccount
		}
		return fmt.Errorf("auth: create account: %w", err)
	}
	return nil
}

// UpdatePasswordHash stores a freshly rotated credential hash.
func (r *PGRepository) UpdatePasswordHash(ctx context.Context, principalID uuid.UUID, hash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		principalID, hash)
	if err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GetSecurity loads the security record for a principal, creating a fresh
// one when none exists yet.
func (r *PGRepository) GetSecurity(ctx context.Context, principalID uuid.UUID) (*security.Account, error) {
	record := &security.Account{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, principal_id, failed_attempts, last_failed_attempt, locked_until,
		       lock_reason, last_successful_login, login_count, suspicious_activity_score,
		       suspicious_ips, password_last_changed, password_history, created_at, updated_at
		FROM account_security WHERE principal_id = $1`, principalID).
		Scan(&record.ID, &record.PrincipalID, &record.FailedAttempts, &record.LastFailedAttempt,
			&record.LockedUntil, &record.LockReason, &record.LastSuccessfulLogin,
			&record.LoginCount, &record.SuspiciousActivityScore, &record.SuspiciousIPs,
			&record.PasswordLastChanged, &record.PasswordHistory, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return security.NewAccount(principalID), nil
		}
		return nil, fmt.Errorf("auth: get security record: %w", err)
	}
	return record, nil
}

// RotateCredentials updates the credential hash and the security record
// in one transaction.
func (r *PGRepository) RotateCredentials(ctx context.Context, principalID uuid.UUID, hash string, record *security.Account) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
			principalID, hash)
		if err != nil {
			return fmt.Errorf("auth: update password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return saveSecurity(ctx, tx, record)
	})
}

// SaveSecurity upserts the security record.
func (r *PGRepository) SaveSecurity(ctx context.Context, record *security.Account) error {
	return saveSecurity(ctx, r.pool, record)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func saveSecurity(ctx context.Context, ex execer, record *security.Account) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO account_security
			(id, principal_id, failed_attempts, last_failed_attempt, locked_until,
			 lock_reason, last_successful_login, login_count, suspicious_activity_score,
			 suspicious_ips, password_last_changed, password_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (principal_id) DO UPDATE SET
			failed_attempts = EXCLUDED.failed_attempts,
			last_failed_attempt = EXCLUDED.last_failed_attempt,
			locked_until = EXCLUDED.locked_until,
			lock_reason = EXCLUDED.lock_reason,
			last_successful_login = EXCLUDED.last_successful_login,
			login_count = EXCLUDED.login_count,
			suspicious_activity_score = EXCLUDED.suspicious_activity_score,
			suspicious_ips = EXCLUDED.suspicious_ips,
			password_last_changed = EXCLUDED.password_last_changed,
			password_history = EXCLUDED.password_history,
			updated_at = EXCLUDED.updated_at`,
		record.ID, record.PrincipalID, record.FailedAttempts, record.LastFailedAttempt,
		record.LockedUntil, record.LockReason, record.LastSuccessfulLogin,
		record.LoginCount, record.SuspiciousActivityScore, record.SuspiciousIPs,
		record.PasswordLastChanged, record.PasswordHistory, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("auth: save security record: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
