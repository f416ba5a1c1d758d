package security

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, cfg Config) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Now()}
	svc, err := NewService(cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return svc, clock
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxFailedAttempts = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.LockoutDuration = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.PasswordHistoryCount = -1
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxPasswordAge = 0
	require.Error(t, bad.Validate())
}

func TestFailuresBelowThreshold(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	account := NewAccount(uuid.New())

	for i := 1; i < 5; i++ {
		action := svc.RecordFailedAttempt(account, "10.0.0.1")
		inc, ok := action.(IncrementFailures)
		require.True(t, ok, "attempt %d should not lock", i)
		require.Equal(t, i, inc.CurrentCount)
		require.Equal(t, 5, inc.MaxAttempts)
		require.False(t, account.IsLocked())
	}
}

func TestLockAtThreshold(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	account := NewAccount(uuid.New())

	for i := 0; i < 4; i++ {
		svc.RecordFailedAttempt(account, "10.0.0.1")
	}
	action := svc.RecordFailedAttempt(account, "10.0.0.1")
	locked, ok := action.(AccountLocked)
	require.True(t, ok)
	require.Equal(t, 30*time.Minute, locked.Duration)
	require.Contains(t, locked.Reason, "5 consecutive failed login attempts")

	require.True(t, account.IsLocked())
	require.InDelta(t, float64(30*time.Minute), float64(account.LockRemaining()), float64(time.Second))

	account.LockedUntil = time.Now().Add(-time.Minute)
	require.False(t, account.IsLocked())
	require.Zero(t, account.LockRemaining())
}

func TestProgressiveLockoutGrows(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	account := NewAccount(uuid.New())

	for i := 0; i < 5; i++ {
		svc.RecordFailedAttempt(account, "10.0.0.1")
	}
	// Sixth failure: multiplier 6-5+1 = 2.
	action := svc.RecordFailedAttempt(account, "10.0.0.1")
	locked, ok := action.(AccountLocked)
	require.True(t, ok)
	require.Equal(t, 60*time.Minute, locked.Duration)

	// Seventh: multiplier 3.
	action = svc.RecordFailedAttempt(account, "10.0.0.1")
	locked = action.(AccountLocked)
	require.Equal(t, 90*time.Minute, locked.Duration)
}

func TestFixedLockoutWhenProgressiveDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProgressiveLockout = false
	svc, _ := newTestService(t, cfg)
	account := NewAccount(uuid.New())

	for i := 0; i < 6; i++ {
		svc.RecordFailedAttempt(account, "10.0.0.1")
	}
	action := svc.RecordFailedAttempt(account, "10.0.0.1")
	locked, ok := action.(AccountLocked)
	require.True(t, ok)
	require.Equal(t, 30*time.Minute, locked.Duration)
}

func TestSuspiciousIPRecordedAtThirdFailure(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	account := NewAccount(uuid.New())

	svc.RecordFailedAttempt(account, "203.0.113.9")
	svc.RecordFailedAttempt(account, "203.0.113.9")
	require.Empty(t, account.SuspiciousIPs)
	require.Zero(t, account.SuspiciousActivityScore)

	svc.RecordFailedAttempt(account, "203.0.113.9")
	require.Equal(t, []string{"203.0.113.9"}, account.SuspiciousIPs)
	require.Equal(t, 10, account.SuspiciousActivityScore)

	// The same IP is not recorded twice.
	svc.RecordFailedAttempt(account, "203.0.113.9")
	require.Len(t, account.SuspiciousIPs, 1)
	require.Equal(t, 10, account.SuspiciousActivityScore)

	// A different failing IP is.
	svc.RecordFailedAttempt(account, "203.0.113.10")
	require.Len(t, account.SuspiciousIPs, 2)
	require.Equal(t, 20, account.SuspiciousActivityScore)
}

func TestSuccessResetsFailureState(t *testing.T) {
	svc, clock := newTestService(t, DefaultConfig())
	account := NewAccount(uuid.New())

	svc.RecordFailedAttempt(account, "203.0.113.9")
	svc.RecordFailedAttempt(account, "203.0.113.9")
	svc.RecordFailedAttempt(account, "203.0.113.9")

	svc.RecordSuccessfulLogin(account, "203.0.113.9")
	require.Zero(t, account.FailedAttempts)
	require.True(t, account.LastFailedAttempt.IsZero())
	require.Equal(t, clock.Now(), account.LastSuccessfulLogin)
	require.Equal(t, int64(1), account.LoginCount)
	require.Empty(t, account.SuspiciousIPs)
	require.Equal(t, 5, account.SuspiciousActivityScore)
}

func TestScoreFlooredAtZero(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	account := NewAccount(uuid.New())
	account.SuspiciousActivityScore = 3

	svc.RecordSuccessfulLogin(account, "10.0.0.1")
	require.Zero(t, account.SuspiciousActivityScore)
}

func TestPasswordHistoryBoundedFIFO(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PasswordHistoryCount = 3
	svc, _ := newTestService(t, cfg)
	account := NewAccount(uuid.New())

	svc.RecordPasswordChange(account, "h1")
	svc.RecordPasswordChange(account, "h2")
	svc.RecordPasswordChange(account, "h3")
	require.Equal(t, []string{"h3", "h2", "h1"}, account.PasswordHistory)

	// The oldest entry is evicted and becomes reusable again.
	svc.RecordPasswordChange(account, "h4")
	require.Equal(t, []string{"h4", "h3", "h2"}, account.PasswordHistory)
	require.True(t, svc.CanUsePassword(account, "h1"))
	require.False(t, svc.CanUsePassword(account, "h3"))
}

func TestPasswordChangeClearsLockout(t *testing.T) {
	svc, clock := newTestService(t, DefaultConfig())
	account := NewAccount(uuid.New())

	for i := 0; i < 5; i++ {
		svc.RecordFailedAttempt(account, "10.0.0.1")
	}
	require.True(t, account.IsLocked())

	svc.RecordPasswordChange(account, "fresh")
	require.False(t, account.IsLocked())
	require.Zero(t, account.FailedAttempts)
	require.Empty(t, account.LockReason)
	require.Equal(t, clock.Now(), account.PasswordLastChanged)
}

func TestDetectSuspiciousActivityBuckets(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())

	clean := NewAccount(uuid.New())
	require.Equal(t, RiskLow, svc.DetectSuspiciousActivity(clean, "10.0.0.1"))

	// 20 (suspicious IP) + 2*5 = 30 -> medium.
	medium := NewAccount(uuid.New())
	medium.SuspiciousIPs = []string{"203.0.113.9"}
	medium.FailedAttempts = 2
	require.Equal(t, RiskMedium, svc.DetectSuspiciousActivity(medium, "203.0.113.9"))

	// 20 + 4*5 + 30 = 70 -> high.
	high := NewAccount(uuid.New())
	high.SuspiciousIPs = []string{"203.0.113.9"}
	high.FailedAttempts = 4
	high.SuspiciousActivityScore = 30
	require.Equal(t, RiskHigh, svc.DetectSuspiciousActivity(high, "203.0.113.9"))

	// 20 + 8*5 + 50 = 110 -> critical.
	critical := NewAccount(uuid.New())
	critical.SuspiciousIPs = []string{"203.0.113.9"}
	critical.FailedAttempts = 8
	critical.SuspiciousActivityScore = 50
	require.Equal(t, RiskCritical, svc.DetectSuspiciousActivity(critical, "203.0.113.9"))

	// The IP only counts when it is one of the suspicious ones.
	require.Equal(t, RiskLow, svc.DetectSuspiciousActivity(medium, "10.0.0.1"))
}

func TestNeedsReview(t *testing.T) {
	maxAge := DefaultConfig().MaxPasswordAge

	account := NewAccount(uuid.New())
	require.False(t, account.NeedsReview(maxAge))

	account.SuspiciousActivityScore = 60
	require.True(t, account.NeedsReview(maxAge))

	account = NewAccount(uuid.New())
	account.FailedAttempts = 4
	require.True(t, account.NeedsReview(maxAge))

	account = NewAccount(uuid.New())
	account.PasswordLastChanged = time.Now().Add(-91 * 24 * time.Hour)
	require.True(t, account.NeedsReview(maxAge))
}

func TestUnlockAccountClearsEverything(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	account := NewAccount(uuid.New())

	for i := 0; i < 5; i++ {
		svc.RecordFailedAttempt(account, "203.0.113.9")
	}
	require.True(t, account.IsLocked())

	svc.UnlockAccount(account, "identity verified over phone")
	require.False(t, account.IsLocked())
	require.Zero(t, account.FailedAttempts)
	require.Zero(t, account.SuspiciousActivityScore)
	require.Empty(t, account.LockReason)
}
