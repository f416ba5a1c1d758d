package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// AuthorizationError is the typed rejection returned by Authorize. It is an
// ordinary outcome, not a fault.
type AuthorizationError struct {
	PrincipalID uuid.UUID
	Required    Permission
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("rbac: principal %s does not have permission for %s", e.PrincipalID, e.Required)
}

// Engine composes the role catalog, the permission matcher and a role
// store into a check/authorize API.
type Engine struct {
	catalog  *Catalog
	store    Store
	fallback Role
	logger   *slog.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithFallbackRole makes the engine evaluate principals absent from the
// store as if they held the given role. Without it unknown principals are
// denied outright.
func WithFallbackRole(role Role) EngineOption {
	return func(e *Engine) { e.fallback = role }
}

// WithLogger attaches a logger for fail-closed store errors.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine constructs an Engine over the given catalog and store.
func NewEngine(catalog *Catalog, store Store, opts ...EngineOption) *Engine {
	e := &Engine{catalog: catalog, store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Catalog exposes the role table the engine was built with.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// AssignRole adds a role to the principal, creating the record with the
// fallback role on first assignment. Idempotent.
func (e *Engine) AssignRole(ctx context.Context, principalID uuid.UUID, role Role) error {
	if !e.catalog.Known(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return e.store.Mutate(ctx, principalID, e.newRecord(principalID), func(record *UserRoles) {
		record.AddRole(role)
	})
}

// RemoveRole removes a role from the principal. Removing a role the
// principal does not hold is a no-op.
func (e *Engine) RemoveRole(ctx context.Context, principalID uuid.UUID, role Role) error {
	if !e.catalog.Known(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return e.store.Mutate(ctx, principalID, e.newRecord(principalID), func(record *UserRoles) {
		record.RemoveRole(role)
	})
}

// GrantPermission attaches a custom permission to the principal.
func (e *Engine) GrantPermission(ctx context.Context, principalID uuid.UUID, p Permission) error {
	if p.Resource == "" || p.Action == "" {
		return errors.New("rbac: permission resource and action are required")
	}
	return e.store.Mutate(ctx, principalID, e.newRecord(principalID), func(record *UserRoles) {
		record.Grant(p)
	})
}

// DenyPermission records an explicit denial for the principal. A denial
// overrides any matching grant, role-derived or custom.
func (e *Engine) DenyPermission(ctx context.Context, principalID uuid.UUID, p Permission) error {
	if p.Resource == "" || p.Action == "" {
		return errors.New("rbac: permission resource and action are required")
	}
	return e.store.Mutate(ctx, principalID, e.newRecord(principalID), func(record *UserRoles) {
		record.Deny(p)
	})
}

// Roles returns the principal's record.
func (e *Engine) Roles(ctx context.Context, principalID uuid.UUID) (UserRoles, error) {
	return e.store.Get(ctx, principalID)
}

// CheckPermission reports whether the principal holds the required
// permission under the given context. Store failures and malformed input
// deny rather than error.
func (e *Engine) CheckPermission(ctx context.Context, principalID uuid.UUID, required Permission, pctx PermissionContext) bool {
	if required.Resource == "" || required.Action == "" {
		return false
	}
	record, err := e.store.Get(ctx, principalID)
	if err != nil {
		if !errors.Is(err, ErrPrincipalNotFound) {
			e.logger.Error("rbac store read failed, denying", slog.String("principal", principalID.String()), slog.Any("error", err))
			return false
		}
		if e.fallback == "" {
			return false
		}
		record = NewUserRoles(principalID, e.fallback)
	}
	return e.hasPermission(record, required, pctx)
}

// Authorize returns nil when the principal holds the required permission
// and an *AuthorizationError otherwise.
func (e *Engine) Authorize(ctx context.Context, principalID uuid.UUID, required Permission, pctx PermissionContext) error {
	if e.CheckPermission(ctx, principalID, required, pctx) {
		return nil
	}
	return &AuthorizationError{PrincipalID: principalID, Required: required}
}

// EffectivePermissions returns the union of role-derived and custom
// permissions minus anything matching a denial.
func (e *Engine) EffectivePermissions(ctx context.Context, principalID uuid.UUID) ([]Permission, error) {
	record, err := e.store.Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) && e.fallback != "" {
			record = NewUserRoles(principalID, e.fallback)
		} else {
			return nil, err
		}
	}

	seen := make(map[string]struct{})
	var all []Permission
	for role := range record.Roles {
		for _, p := range e.catalog.Permissions(role) {
			if _, ok := seen[p.key()]; ok {
				continue
			}
			seen[p.key()] = struct{}{}
			all = append(all, p)
		}
	}
	for _, p := range record.CustomPermissions {
		if _, ok := seen[p.key()]; ok {
			continue
		}
		seen[p.key()] = struct{}{}
		all = append(all, p)
	}

	// Denials are resolved without request facts: only the conditions that
	// hold against a bare actor context remove a permission here.
	bare := NewContext(principalID, "")
	effective := all[:0]
	for _, p := range all {
		denied := false
		for _, d := range record.DeniedPermissions {
			if p.Matches(d, bare) {
				denied = true
				break
			}
		}
		if !denied {
			effective = append(effective, p)
		}
	}
	return effective, nil
}

// hasPermission applies the fixed evaluation order: denials, then custom
// grants, then role-derived permissions.
func (e *Engine) hasPermission(record UserRoles, required Permission, pctx PermissionContext) bool {
	for _, denied := range record.DeniedPermissions {
		if denied.Matches(required, pctx) {
			return false
		}
	}
	for _, p := range record.CustomPermissions {
		if p.Matches(required, pctx) {
			return true
		}
	}
	for role := range record.Roles {
		for _, p := range e.catalog.Permissions(role) {
			if p.Matches(required, pctx) {
				return true
			}
		}
	}
	return false
}

func (e *Engine) newRecord(principalID uuid.UUID) func() UserRoles {
	return func() UserRoles {
		if e.fallback == "" {
			return UserRoles{PrincipalID: principalID, Roles: make(map[Role]struct{})}
		}
		return NewUserRoles(principalID, e.fallback)
	}
}
