// Package security implements per-account abuse protection: failed-login
// tracking with progressive lockout, suspicious-activity scoring and
// bounded password history.
package security

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is the security aggregate for one principal. The caller owns the
// record and its durable persistence; the service mutates it in place under
// the caller's per-account lock.
type Account struct {
	ID          uuid.UUID
	PrincipalID uuid.UUID

	FailedAttempts    int
	LastFailedAttempt time.Time

	LockedUntil time.Time
	LockReason  string

	LastSuccessfulLogin time.Time
	LoginCount          int64

	SuspiciousActivityScore int
	SuspiciousIPs           []string

	PasswordLastChanged time.Time
	PasswordHistory     []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates a fresh security record for a principal.
func NewAccount(principalID uuid.UUID) *Account {
	now := time.Now()
	return &Account{
		ID:                  uuid.New(),
		PrincipalID:         principalID,
		PasswordLastChanged: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// IsLocked reports whether the account is inside a lockout window.
func (a *Account) IsLocked() bool {
	return !a.LockedUntil.IsZero() && time.Now().Before(a.LockedUntil)
}

// LockRemaining returns how long the current lockout still has to run,
// zero when the account is not locked.
func (a *Account) LockRemaining() time.Duration {
	if a.LockedUntil.IsZero() {
		return 0
	}
	remaining := time.Until(a.LockedUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NeedsReview flags accounts that warrant manual security attention.
func (a *Account) NeedsReview(maxPasswordAge time.Duration) bool {
	return a.SuspiciousActivityScore > 50 ||
		a.FailedAttempts > 3 ||
		time.Since(a.PasswordLastChanged) > maxPasswordAge
}

func (a *Account) hasSuspiciousIP(ip string) bool {
	for _, known := range a.SuspiciousIPs {
		if known == ip {
			return true
		}
	}
	return false
}

// Config tunes the security service. All thresholds and durations must be
// positive; an invalid configuration must prevent startup.
type Config struct {
	MaxFailedAttempts    int
	LockoutDuration      time.Duration
	ProgressiveLockout   bool
	PasswordHistoryCount int
	MaxPasswordAge       time.Duration
}

// DefaultConfig returns the production defaults: five attempts, 30-minute
// progressive lockouts, twelve remembered passwords, 90-day password age.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts:    5,
		LockoutDuration:      30 * time.Minute,
		ProgressiveLockout:   true,
		PasswordHistoryCount: 12,
		MaxPasswordAge:       90 * 24 * time.Hour,
	}
}

// Validate rejects configurations that would disable the protections.
func (c Config) Validate() error {
	if c.MaxFailedAttempts <= 0 {
		return fmt.Errorf("security: max failed attempts must be positive, got %d", c.MaxFailedAttempts)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("security: lockout duration must be positive, got %s", c.LockoutDuration)
	}
	if c.PasswordHistoryCount <= 0 {
		return fmt.Errorf("security: password history count must be positive, got %d", c.PasswordHistoryCount)
	}
	if c.MaxPasswordAge <= 0 {
		return fmt.Errorf("security: max password age must be positive, got %s", c.MaxPasswordAge)
	}
	return nil
}
