package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openbank-platform/openbank/internal/audit"
	"github.com/openbank-platform/openbank/internal/observability"
	"github.com/openbank-platform/openbank/internal/security"
	"github.com/openbank-platform/openbank/internal/shared"
)

// ErrPasswordReused rejects a password change that matches the history.
var ErrPasswordReused = errors.New("auth: password was used recently")

// PolicyError carries the full list of password policy violations.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("auth: password rejected by policy (%d violations)", len(e.Violations))
}

// Service runs the credential-exchange flow: the account-security gate,
// bcrypt verification, security bookkeeping and audit emission. The rate
// limiter has already run at ingress, so a throttled request never
// reaches this service.
type Service struct {
	repo     Repository
	security *security.Service
	policy   security.PasswordPolicy
	recorder *audit.Recorder
	metrics  *observability.Metrics
	logger   *slog.Logger

	// accountLocks provides the per-account mutual exclusion around each
	// read-modify-write of a security record.
	accountLocks sync.Map
}

// NewService constructs the auth service.
func NewService(repo Repository, securitySvc *security.Service, policy security.PasswordPolicy, recorder *audit.Recorder, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		security: securitySvc,
		policy:   policy,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// Login validates email/password credentials from the given client IP.
// Lockout is checked before the password so a locked account leaks no
// credential information, and every outcome is audited.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*Account, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		s.recorder.LoginAttempt(ctx, nil, ip, false)
		return nil, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		s.recorder.LoginAttempt(ctx, &account.ID, ip, false)
		return nil, shared.ErrInvalidCredentials
	}

	unlock := s.lockAccount(account.ID)
	defer unlock()

	record, err := s.repo.GetSecurity(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if record.IsLocked() {
		s.recorder.LoginAttempt(ctx, &account.ID, ip, false)
		return nil, fmt.Errorf("%w: retry after %s", shared.ErrAccountLocked, record.LockRemaining())
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, s.registerFailure(ctx, account.ID, record, ip)
	}

	s.security.RecordSuccessfulLogin(record, ip)
	if err := s.repo.SaveSecurity(ctx, record); err != nil {
		s.logger.Error("save security record", slog.Any("error", err))
	}
	s.recorder.LoginAttempt(ctx, &account.ID, ip, true)
	return account, nil
}

// ChangePassword rotates the account credential after verifying the
// current password, the password policy and the reuse history.
func (s *Service) ChangePassword(ctx context.Context, principalID uuid.UUID, email, currentPassword, newPassword, ip string) error {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return shared.ErrInvalidCredentials
	}
	if account.ID != principalID {
		return shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(currentPassword)); err != nil {
		return shared.ErrInvalidCredentials
	}
	if violations := s.policy.Validate(newPassword); len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}

	unlock := s.lockAccount(account.ID)
	defer unlock()

	record, err := s.repo.GetSecurity(ctx, account.ID)
	if err != nil {
		return err
	}
	// History entries are salted bcrypt hashes, so reuse is detected by
	// verifying the candidate against each entry rather than by the
	// hash-equality check used for deterministic schemes.
	for _, old := range record.PasswordHistory {
		if bcrypt.CompareHashAndPassword([]byte(old), []byte(newPassword)) == nil {
			return ErrPasswordReused
		}
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(newPassword)) == nil {
		return ErrPasswordReused
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	s.security.RecordPasswordChange(record, string(hashed))
	if err := s.repo.RotateCredentials(ctx, account.ID, string(hashed), record); err != nil {
		return err
	}
	s.recorder.PasswordChanged(ctx, account.ID, ip)
	return nil
}

// Unlock is the administrative lockout override.
func (s *Service) Unlock(ctx context.Context, principalID uuid.UUID, reason, ip string) error {
	unlock := s.lockAccount(principalID)
	defer unlock()

	record, err := s.repo.GetSecurity(ctx, principalID)
	if err != nil {
		return err
	}
	s.security.UnlockAccount(record, reason)
	if err := s.repo.SaveSecurity(ctx, record); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.NewEvent(audit.EventAccountUnlocked,
		audit.WithPrincipal(principalID),
		audit.WithIP(ip),
		audit.WithMetadata("reason", reason),
		audit.WithTags(audit.TagSOC2, audit.TagSecurity),
	))
	return nil
}

// Risk reports the current suspicious-activity level for a principal and
// client IP without mutating any state.
func (s *Service) Risk(ctx context.Context, principalID uuid.UUID, ip string) (security.RiskLevel, error) {
	record, err := s.repo.GetSecurity(ctx, principalID)
	if err != nil {
		return "", err
	}
	return s.security.DetectSuspiciousActivity(record, ip), nil
}

func (s *Service) registerFailure(ctx context.Context, principalID uuid.UUID, record *security.Account, ip string) error {
	action := s.security.RecordFailedAttempt(record, ip)
	if err := s.repo.SaveSecurity(ctx, record); err != nil {
		s.logger.Error("save security record", slog.Any("error", err))
	}
	s.recorder.LoginAttempt(ctx, &principalID, ip, false)

	if locked, ok := action.(security.AccountLocked); ok {
		s.metrics.AccountLocked()
		s.recorder.AccountLocked(ctx, principalID, ip, locked.Reason)
		return fmt.Errorf("%w: retry after %s", shared.ErrAccountLocked, locked.Duration)
	}

	level := s.security.DetectSuspiciousActivity(record, ip)
	if level == security.RiskHigh || level == security.RiskCritical {
		s.recorder.SuspiciousActivity(ctx, &principalID, ip, "repeated_login_failures", map[string]string{
			"failed_attempts": strconv.Itoa(record.FailedAttempts),
			"risk_level":      string(level),
		})
	}
	return shared.ErrInvalidCredentials
}

func (s *Service) lockAccount(principalID uuid.UUID) func() {
	value, _ := s.accountLocks.LoadOrStore(principalID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
