package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/openbank-platform/openbank/internal/audit"
	"github.com/openbank-platform/openbank/internal/security"
	"github.com/openbank-platform/openbank/internal/shared"
)

type stubRepo struct {
	account  *Account
	security map[uuid.UUID]*security.Account
	saved    int
	rotated  int
}

func newStubRepo(account *Account) *stubRepo {
	return &stubRepo{account: account, security: make(map[uuid.UUID]*security.Account)}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if s.account == nil || s.account.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.account, nil
}

func (s *stubRepo) CreateAccount(ctx context.Context, account *Account) error {
	s.account = account
	return nil
}

func (s *stubRepo) UpdatePasswordHash(ctx context.Context, principalID uuid.UUID, hash string) error {
	s.account.PasswordHash = hash
	return nil
}

func (s *stubRepo) RotateCredentials(ctx context.Context, principalID uuid.UUID, hash string, record *security.Account) error {
	s.rotated++
	s.account.PasswordHash = hash
	s.security[principalID] = record
	return nil
}

func (s *stubRepo) GetSecurity(ctx context.Context, principalID uuid.UUID) (*security.Account, error) {
	if record, ok := s.security[principalID]; ok {
		return record, nil
	}
	return security.NewAccount(principalID), nil
}

func (s *stubRepo) SaveSecurity(ctx context.Context, record *security.Account) error {
	s.saved++
	s.security[record.PrincipalID] = record
	return nil
}

const testPassword = "Valid-Passw0rd-2025"

func newTestAccount(t *testing.T) *Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return &Account{
		ID:           uuid.New(),
		Email:        "dev@openbank.example",
		PasswordHash: string(hash),
		IsActive:     true,
	}
}

func newTestService(t *testing.T, repo Repository) (*Service, *audit.MemorySink) {
	t.Helper()
	cfg := security.DefaultConfig()
	securitySvc, err := security.NewService(cfg)
	require.NoError(t, err)
	sink := &audit.MemorySink{}
	recorder := audit.NewRecorder(nil, sink)
	svc := NewService(repo, securitySvc, security.DefaultPasswordPolicy(), recorder, nil, nil)
	return svc, sink
}

func eventTypes(sink *audit.MemorySink) []audit.EventType {
	events := sink.Events()
	types := make([]audit.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestLoginSuccess(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	svc, sink := newTestService(t, repo)

	got, err := svc.Login(context.Background(), account.Email, testPassword, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, account.ID, got.ID)
	require.Equal(t, 1, repo.saved)

	record := repo.security[account.ID]
	require.Equal(t, int64(1), record.LoginCount)
	require.Zero(t, record.FailedAttempts)

	require.Equal(t, []audit.EventType{audit.EventLoginAttempt}, eventTypes(sink))
	require.True(t, sink.Events()[0].Success)
}

func TestLoginWrongPassword(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	svc, sink := newTestService(t, repo)

	_, err := svc.Login(context.Background(), account.Email, "not-the-password", "10.0.0.1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	record := repo.security[account.ID]
	require.Equal(t, 1, record.FailedAttempts)

	events := sink.Events()
	require.Len(t, events, 1)
	require.Equal(t, audit.EventLoginAttempt, events[0].Type)
	require.False(t, events[0].Success)
}

func TestLoginUnknownEmail(t *testing.T) {
	repo := newStubRepo(nil)
	svc, sink := newTestService(t, repo)

	_, err := svc.Login(context.Background(), "ghost@openbank.example", testPassword, "10.0.0.1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	require.Len(t, sink.Events(), 1)
	require.False(t, sink.Events()[0].Success)
}

func TestLoginInactiveAccount(t *testing.T) {
	account := newTestAccount(t)
	account.IsActive = false
	svc, _ := newTestService(t, newStubRepo(account))

	_, err := svc.Login(context.Background(), account.Email, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginLocksAfterMaxFailures(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	svc, sink := newTestService(t, repo)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Login(ctx, account.Email, "wrong", "203.0.113.9")
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	}

	_, err := svc.Login(ctx, account.Email, "wrong", "203.0.113.9")
	require.ErrorIs(t, err, shared.ErrAccountLocked)

	record := repo.security[account.ID]
	require.True(t, record.IsLocked())
	require.Equal(t, 5, record.FailedAttempts)

	types := eventTypes(sink)
	require.Contains(t, types, audit.EventAccountLocked)

	// Even the correct password is rejected while the lock holds, and no
	// further failure is recorded.
	_, err = svc.Login(ctx, account.Email, testPassword, "203.0.113.9")
	require.ErrorIs(t, err, shared.ErrAccountLocked)
	require.Equal(t, 5, repo.security[account.ID].FailedAttempts)
}

func TestLoginEmitsSuspiciousActivityAtHighRisk(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	svc, sink := newTestService(t, repo)

	// Pre-seed a record that the next failure pushes into the high band:
	// suspicious IP (20) + 3*5 attempts + 30 score = 65.
	record := security.NewAccount(account.ID)
	record.FailedAttempts = 2
	record.SuspiciousIPs = []string{"203.0.113.9"}
	record.SuspiciousActivityScore = 30
	repo.security[account.ID] = record

	_, err := svc.Login(context.Background(), account.Email, "wrong", "203.0.113.9")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	require.Contains(t, eventTypes(sink), audit.EventSuspiciousActivity)
}

func TestChangePassword(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	svc, sink := newTestService(t, repo)
	oldHash := account.PasswordHash

	const next = "Entirely-New-Secret-77!"
	err := svc.ChangePassword(context.Background(), account.ID, account.Email, testPassword, next, "10.0.0.1")
	require.NoError(t, err)
	require.NotEqual(t, oldHash, account.PasswordHash)
	require.Equal(t, 1, repo.rotated)
	require.Len(t, repo.security[account.ID].PasswordHistory, 1)
	require.Contains(t, eventTypes(sink), audit.EventPasswordChanged)

	// Old credential no longer works, the new one does.
	_, err = svc.Login(context.Background(), account.Email, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), account.Email, next, "10.0.0.1")
	require.NoError(t, err)
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	account := newTestAccount(t)
	svc, _ := newTestService(t, newStubRepo(account))

	err := svc.ChangePassword(context.Background(), account.ID, account.Email, "wrong", "Entirely-New-Secret-77!", "10.0.0.1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestChangePasswordRejectsPolicyViolations(t *testing.T) {
	account := newTestAccount(t)
	svc, _ := newTestService(t, newStubRepo(account))

	err := svc.ChangePassword(context.Background(), account.ID, account.Email, testPassword, "weak", "10.0.0.1")
	var policyErr *PolicyError
	require.ErrorAs(t, err, &policyErr)
	require.NotEmpty(t, policyErr.Violations)
	require.True(t, strings.Contains(policyErr.Error(), "violations"))
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	// Reusing the current password is refused outright.
	err := svc.ChangePassword(ctx, account.ID, account.Email, testPassword, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrPasswordReused)

	// Rotating to any password remembered in the history is refused.
	const recycled = "Recycled-Secret-88!"
	oldHash, hashErr := bcrypt.GenerateFromPassword([]byte(recycled), bcrypt.MinCost)
	require.NoError(t, hashErr)
	record := security.NewAccount(account.ID)
	record.PasswordHistory = []string{string(oldHash)}
	repo.security[account.ID] = record

	err = svc.ChangePassword(ctx, account.ID, account.Email, testPassword, recycled, "10.0.0.1")
	require.ErrorIs(t, err, ErrPasswordReused)
}

func TestUnlockClearsLockout(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	svc, sink := newTestService(t, repo)
	ctx := context.Background()

	record := security.NewAccount(account.ID)
	record.FailedAttempts = 7
	record.LockedUntil = time.Now().Add(time.Hour)
	record.LockReason = "too many failures"
	repo.security[account.ID] = record

	require.NoError(t, svc.Unlock(ctx, account.ID, "identity verified", "10.0.0.1"))
	require.False(t, repo.security[account.ID].IsLocked())
	require.Contains(t, eventTypes(sink), audit.EventAccountUnlocked)

	_, err := svc.Login(ctx, account.Email, testPassword, "10.0.0.1")
	require.NoError(t, err)
}

func TestRiskReportsWithoutMutation(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	svc, _ := newTestService(t, repo)

	record := security.NewAccount(account.ID)
	record.FailedAttempts = 2
	record.SuspiciousIPs = []string{"203.0.113.9"}
	repo.security[account.ID] = record

	level, err := svc.Risk(context.Background(), account.ID, "203.0.113.9")
	require.NoError(t, err)
	require.Equal(t, security.RiskMedium, level)
	require.Equal(t, 2, repo.security[account.ID].FailedAttempts)
}

var _ Repository = (*stubRepo)(nil)
