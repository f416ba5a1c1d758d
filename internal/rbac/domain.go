package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Role is a named grouping of permissions. The set of valid roles is fixed
// by the Catalog the engine is constructed with.
type Role string

// Platform roles.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleDeveloper  Role = "developer"
	RoleSupport    Role = "support"
	RoleAuditor    Role = "auditor"
	RoleReadOnly   Role = "read_only"
)

var (
	// ErrPrincipalNotFound indicates no role record exists for the principal.
	ErrPrincipalNotFound = errors.New("rbac: principal not found")
	// ErrUnknownRole indicates a role outside the configured catalog.
	ErrUnknownRole = errors.New("rbac: unknown role")
)

// Permission is an atomic capability over a resource. Conditions qualify a
// required permission and are evaluated against the request context, never
// compared for equality.
type Permission struct {
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

// PermissionOption customises a Permission at construction time.
type PermissionOption func(*Permission)

// WithCondition attaches a named condition to the permission.
func WithCondition(key, value string) PermissionOption {
	return func(p *Permission) {
		if p.Conditions == nil {
			p.Conditions = make(map[string]string)
		}
		p.Conditions[key] = value
	}
}

// NewPermission constructs a Permission value.
func NewPermission(resource, action string, opts ...PermissionOption) Permission {
	p := Permission{Resource: resource, Action: action}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// key returns a stable identity used for deduplication. Conditions are part
// of the identity so a conditional grant never shadows an unconditional one.
func (p Permission) key() string {
	if len(p.Conditions) == 0 {
		return p.Resource + "\x00" + p.Action
	}
	keys := make([]string, 0, len(p.Conditions))
	for k := range p.Conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(p.Resource)
	b.WriteByte(0)
	b.WriteString(p.Action)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Conditions[k])
	}
	return b.String()
}

// String renders a permission as resource:action.
func (p Permission) String() string {
	return fmt.Sprintf("%s:%s", p.Resource, p.Action)
}

// PermissionContext carries the per-request facts conditions are evaluated
// against. Zero UUIDs mean the fact is not known for this request.
type PermissionContext struct {
	ActorID         uuid.UUID
	ResourceOwnerID uuid.UUID
	ProjectOwnerID  uuid.UUID
	Environment     string
	IPAddress       string
	Extra           map[string]string
}

// ContextOption customises a PermissionContext at construction time.
type ContextOption func(*PermissionContext)

// WithResourceOwner records the owner of the resource under access.
func WithResourceOwner(id uuid.UUID) ContextOption {
	return func(c *PermissionContext) { c.ResourceOwnerID = id }
}

// WithProjectOwner records the owner of the enclosing project.
func WithProjectOwner(id uuid.UUID) ContextOption {
	return func(c *PermissionContext) { c.ProjectOwnerID = id }
}

// WithEnvironment records the deployment environment of the request.
func WithEnvironment(env string) ContextOption {
	return func(c *PermissionContext) { c.Environment = env }
}

// WithExtra attaches an auxiliary context value.
func WithExtra(key, value string) ContextOption {
	return func(c *PermissionContext) {
		if c.Extra == nil {
			c.Extra = make(map[string]string)
		}
		c.Extra[key] = value
	}
}

// NewContext constructs a PermissionContext for the given actor and client IP.
func NewContext(actorID uuid.UUID, ip string, opts ...ContextOption) PermissionContext {
	c := PermissionContext{ActorID: actorID, IPAddress: ip}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// UserRoles is the role record for a single principal: assigned roles plus
// per-principal grants and denials. Denials always win over grants.
type UserRoles struct {
	PrincipalID       uuid.UUID
	Roles             map[Role]struct{}
	CustomPermissions []Permission
	DeniedPermissions []Permission
}

// NewUserRoles creates a record holding a single role.
func NewUserRoles(principalID uuid.UUID, role Role) UserRoles {
	return UserRoles{
		PrincipalID: principalID,
		Roles:       map[Role]struct{}{role: {}},
	}
}

// AddRole assigns a role. Idempotent.
func (u *UserRoles) AddRole(role Role) {
	if u.Roles == nil {
		u.Roles = make(map[Role]struct{})
	}
	u.Roles[role] = struct{}{}
}

// RemoveRole unassigns a role. Idempotent.
func (u *UserRoles) RemoveRole(role Role) {
	delete(u.Roles, role)
}

// Grant adds a custom permission outside any role.
func (u *UserRoles) Grant(p Permission) {
	for _, existing := range u.CustomPermissions {
		if existing.key() == p.key() {
			return
		}
	}
	u.CustomPermissions = append(u.CustomPermissions, p)
}

// Deny records an explicit denial overriding any matching grant.
func (u *UserRoles) Deny(p Permission) {
	for _, existing := range u.DeniedPermissions {
		if existing.key() == p.key() {
			return
		}
	}
	u.DeniedPermissions = append(u.DeniedPermissions, p)
}

// clone returns an independent copy so callers cannot mutate stored state.
func (u UserRoles) clone() UserRoles {
	out := UserRoles{PrincipalID: u.PrincipalID}
	if u.Roles != nil {
		out.Roles = make(map[Role]struct{}, len(u.Roles))
		for r := range u.Roles {
			out.Roles[r] = struct{}{}
		}
	}
	out.CustomPermissions = clonePermissions(u.CustomPermissions)
	out.DeniedPermissions = clonePermissions(u.DeniedPermissions)
	return out
}

func clonePermissions(in []Permission) []Permission {
	if in == nil {
		return nil
	}
	out := make([]Permission, len(in))
	for i, p := range in {
		out[i] = p
		if p.Conditions != nil {
			conds := make(map[string]string, len(p.Conditions))
			for k, v := range p.Conditions {
				conds[k] = v
			}
			out[i].Conditions = conds
		}
	}
	return out
}
