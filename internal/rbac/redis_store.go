package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps role records as JSON values in Redis so multiple
// processes observe the same assignments. Mutations are serialised per
// process; cross-process role administration is expected to go through a
// single admin surface.
type RedisStore struct {
	client *redis.Client
	prefix string
	mu     sync.Mutex
}

type storedUserRoles struct {
	Roles  []Role       `json:"roles"`
	Custom []Permission `json:"custom_permissions,omitempty"`
	Denied []Permission `json:"denied_permissions,omitempty"`
}

// NewRedisStore constructs a RedisStore with the given key prefix
// (e.g. "rbac").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rbac"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, principalID uuid.UUID) (UserRoles, error) {
	payload, err := s.client.Get(ctx, s.key(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return UserRoles{}, ErrPrincipalNotFound
		}
		return UserRoles{}, fmt.Errorf("rbac: redis get: %w", err)
	}
	return decodeUserRoles(principalID, payload)
}

// Mutate implements Store.
func (s *RedisStore) Mutate(ctx context.Context, principalID uuid.UUID, create func() UserRoles, fn func(*UserRoles)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.Get(ctx, principalID)
	if err != nil {
		if !errors.Is(err, ErrPrincipalNotFound) {
			return err
		}
		record = create()
	}
	fn(&record)

	stored := storedUserRoles{
		Custom: record.CustomPermissions,
		Denied: record.DeniedPermissions,
	}
	for role := range record.Roles {
		stored.Roles = append(stored.Roles, role)
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("rbac: encode record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(principalID), payload, 0).Err(); err != nil {
		return fmt.Errorf("rbac: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) key(principalID uuid.UUID) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, principalID)
}

func decodeUserRoles(principalID uuid.UUID, payload []byte) (UserRoles, error) {
	var stored storedUserRoles
	if err := json.Unmarshal(payload, &stored); err != nil {
		return UserRoles{}, fmt.Errorf("rbac: decode record: %w", err)
	}
	record := UserRoles{
		PrincipalID:       principalID,
		Roles:             make(map[Role]struct{}, len(stored.Roles)),
		CustomPermissions: stored.Custom,
		DeniedPermissions: stored.Denied,
	}
	for _, role := range stored.Roles {
		record.Roles[role] = struct{}{}
	}
	return record, nil
}
