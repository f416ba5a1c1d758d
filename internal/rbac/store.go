package rbac

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store persists UserRoles records. Implementations must make Mutate a
// read-modify-write that is safe against concurrent mutators of the same
// principal within the process.
type Store interface {
	// Get returns a copy of the principal's record, or ErrPrincipalNotFound.
	Get(ctx context.Context, principalID uuid.UUID) (UserRoles, error)
	// Mutate applies fn to the principal's record, creating it via create
	// when absent, and persists the result.
	Mutate(ctx context.Context, principalID uuid.UUID, create func() UserRoles, fn func(*UserRoles)) error
}

// MemoryStore keeps role records in a mutex-guarded map. Suitable for a
// single process; swap in RedisStore when records must be shared.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]UserRoles
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]UserRoles)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, principalID uuid.UUID) (UserRoles, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[principalID]
	if !ok {
		return UserRoles{}, ErrPrincipalNotFound
	}
	return record.clone(), nil
}

// Mutate implements Store.
func (s *MemoryStore) Mutate(ctx context.Context, principalID uuid.UUID, create func() UserRoles, fn func(*UserRoles)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[principalID]
	if !ok {
		record = create()
	}
	fn(&record)
	s.records[principalID] = record
	return nil
}
