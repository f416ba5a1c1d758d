package security

import (
	"fmt"
	"log/slog"
	"time"
)

// Action is the outcome of recording a failed attempt.
type Action interface {
	isAction()
}

// AccountLocked reports that the failure pushed the account into lockout.
type AccountLocked struct {
	Duration time.Duration
	Reason   string
}

// IncrementFailures reports the running failure count below the lock
// threshold.
type IncrementFailures struct {
	CurrentCount int
	MaxAttempts  int
}

func (AccountLocked) isAction()     {}
func (IncrementFailures) isAction() {}

// RiskLevel buckets the suspicious-activity risk score.
type RiskLevel string

// Risk buckets, lowest to highest.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// suspiciousIPThreshold is the failed-attempt count at which the failing
// IP is remembered as suspicious.
const suspiciousIPThreshold = 3

// Service applies the account-security rules to caller-owned Account
// records. It performs no I/O; the caller provides per-account mutual
// exclusion around each call together with its read-modify-write of
// durable storage.
type Service struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger attaches a logger for lockout and unlock transitions.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock substitutes the time source. Tests only.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service. The configuration must be valid.
func NewService(cfg Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Config returns the active configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// RecordFailedAttempt registers a failed login from ip. From the third
// distinct failing IP onward the IP is remembered as suspicious and the
// activity score rises by 10. Once the failure count reaches the maximum
// the account locks; with progressive lockout the duration grows linearly
// with each further failure.
func (s *Service) RecordFailedAttempt(account *Account, ip string) Action {
	now := s.now()
	account.FailedAttempts++
	account.LastFailedAttempt = now
	account.UpdatedAt = now

	if account.FailedAttempts >= suspiciousIPThreshold && !account.hasSuspiciousIP(ip) {
		account.SuspiciousIPs = append(account.SuspiciousIPs, ip)
		account.SuspiciousActivityScore += 10
	}

	if account.FailedAttempts >= s.cfg.MaxFailedAttempts {
		duration := s.cfg.LockoutDuration
		if s.cfg.ProgressiveLockout {
			multiplier := account.FailedAttempts - s.cfg.MaxFailedAttempts + 1
			duration = s.cfg.LockoutDuration * time.Duration(multiplier)
		}
		account.LockedUntil = now.Add(duration)
		account.LockReason = lockReason(account.FailedAttempts)
		s.logger.Warn("account locked",
			slog.String("principal", account.PrincipalID.String()),
			slog.Int("failed_attempts", account.FailedAttempts),
			slog.Duration("duration", duration))
		return AccountLocked{Duration: duration, Reason: account.LockReason}
	}

	return IncrementFailures{CurrentCount: account.FailedAttempts, MaxAttempts: s.cfg.MaxFailedAttempts}
}

// RecordSuccessfulLogin clears the failure state, forgives the logging-in
// IP and decays the activity score by 5, floored at zero.
func (s *Service) RecordSuccessfulLogin(account *Account, ip string) {
	now := s.now()
	account.FailedAttempts = 0
	account.LastFailedAttempt = time.Time{}
	account.LastSuccessfulLogin = now
	account.LoginCount++
	account.UpdatedAt = now

	kept := account.SuspiciousIPs[:0]
	for _, known := range account.SuspiciousIPs {
		if known != ip {
			kept = append(kept, known)
		}
	}
	account.SuspiciousIPs = kept

	account.SuspiciousActivityScore -= 5
	if account.SuspiciousActivityScore < 0 {
		account.SuspiciousActivityScore = 0
	}
}

// CanUsePassword reports whether the hash is absent from the bounded
// password history.
func (s *Service) CanUsePassword(account *Account, passwordHash string) bool {
	for _, old := range account.PasswordHistory {
		if old == passwordHash {
			return false
		}
	}
	return true
}

// RecordPasswordChange prepends the new hash to the history, evicting the
// oldest entries beyond the configured count, and clears any lockout.
func (s *Service) RecordPasswordChange(account *Account, newHash string) {
	now := s.now()
	account.PasswordHistory = append([]string{newHash}, account.PasswordHistory...)
	if len(account.PasswordHistory) > s.cfg.PasswordHistoryCount {
		account.PasswordHistory = account.PasswordHistory[:s.cfg.PasswordHistoryCount]
	}
	account.PasswordLastChanged = now
	account.UpdatedAt = now

	account.FailedAttempts = 0
	account.LockedUntil = time.Time{}
	account.LockReason = ""
}

// DetectSuspiciousActivity buckets the current risk for a request from ip:
// 20 for a known suspicious IP, 5 per outstanding failed attempt, plus the
// accumulated activity score.
func (s *Service) DetectSuspiciousActivity(account *Account, ip string) RiskLevel {
	risk := 0
	if account.hasSuspiciousIP(ip) {
		risk += 20
	}
	risk += account.FailedAttempts * 5
	risk += account.SuspiciousActivityScore

	switch {
	case risk <= 20:
		return RiskLow
	case risk <= 50:
		return RiskMedium
	case risk <= 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// UnlockAccount is the administrative override: it clears the lockout and
// every suspicion counter.
func (s *Service) UnlockAccount(account *Account, reason string) {
	account.LockedUntil = time.Time{}
	account.LockReason = ""
	account.FailedAttempts = 0
	account.SuspiciousActivityScore = 0
	account.UpdatedAt = s.now()

	s.logger.Info("account manually unlocked",
		slog.String("principal", account.PrincipalID.String()),
		slog.String("reason", reason))
}

func lockReason(attempts int) string {
	return fmt.Sprintf("account locked after %d consecutive failed login attempts", attempts)
}
