package rbac

import (
	"fmt"
	"sort"
)

// Catalog is the static role table: direct permissions per role and the
// inheritance edges between roles. The inheritance graph must be acyclic;
// the full permission set of every role is precomputed at construction.
type Catalog struct {
	direct   map[Role][]Permission
	inherits map[Role][]Role
	closure  map[Role][]Permission
}

// NewCatalog validates the role table and precomputes the inheritance
// closure. It fails when an inheritance edge references an undeclared role
// or when the graph contains a cycle; callers must treat that as a fatal
// configuration error.
func NewCatalog(direct map[Role][]Permission, inherits map[Role][]Role) (*Catalog, error) {
	c := &Catalog{
		direct:   make(map[Role][]Permission, len(direct)),
		inherits: make(map[Role][]Role, len(inherits)),
		closure:  make(map[Role][]Permission, len(direct)),
	}
	for role, perms := range direct {
		for _, p := range perms {
			if p.Resource == "" || p.Action == "" {
				return nil, fmt.Errorf("rbac: role %s: permission resource and action are required", role)
			}
		}
		c.direct[role] = clonePermissions(perms)
	}
	for role, parents := range inherits {
		if _, ok := c.direct[role]; !ok {
			return nil, fmt.Errorf("rbac: inheritance edge from undeclared role %s", role)
		}
		for _, parent := range parents {
			if _, ok := c.direct[parent]; !ok {
				return nil, fmt.Errorf("rbac: role %s inherits undeclared role %s", role, parent)
			}
		}
		c.inherits[role] = append([]Role(nil), parents...)
	}
	if cycle := c.findCycle(); cycle != "" {
		return nil, fmt.Errorf("rbac: inheritance cycle through role %s", cycle)
	}
	for role := range c.direct {
		c.closure[role] = c.computeClosure(role)
	}
	return c, nil
}

// DefaultCatalog returns the platform role table. The table is static and
// known acyclic, so a validation failure here is a programming error.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultDirectPermissions(), defaultInheritance())
	if err != nil {
		panic(err)
	}
	return c
}

// Known reports whether the role exists in the catalog.
func (c *Catalog) Known(role Role) bool {
	_, ok := c.direct[role]
	return ok
}

// Roles lists the catalog roles in stable order.
func (c *Catalog) Roles() []Role {
	roles := make([]Role, 0, len(c.direct))
	for role := range c.direct {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// DirectPermissions returns the permissions assigned to the role itself.
func (c *Catalog) DirectPermissions(role Role) []Permission {
	return clonePermissions(c.direct[role])
}

// InheritedRoles returns the roles this role absorbs permissions from,
// direct edges only.
func (c *Catalog) InheritedRoles(role Role) []Role {
	return append([]Role(nil), c.inherits[role]...)
}

// Permissions returns the full permission set of a role: its direct
// permissions plus those of every role reachable through inheritance.
func (c *Catalog) Permissions(role Role) []Permission {
	return clonePermissions(c.closure[role])
}

// findCycle runs a three-colour DFS over the inheritance edges and returns
// the first role found on a cycle, or "" when the graph is acyclic.
func (c *Catalog) findCycle() Role {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[Role]int, len(c.direct))
	var visit func(Role) Role
	visit = func(role Role) Role {
		colour[role] = grey
		for _, parent := range c.inherits[role] {
			switch colour[parent] {
			case grey:
				return parent
			case white:
				if hit := visit(parent); hit != "" {
					return hit
				}
			}
		}
		colour[role] = black
		return ""
	}
	roles := c.Roles()
	for _, role := range roles {
		if colour[role] == white {
			if hit := visit(role); hit != "" {
				return hit
			}
		}
	}
	return ""
}

func (c *Catalog) computeClosure(role Role) []Permission {
	seen := make(map[string]struct{})
	var out []Permission
	visited := make(map[Role]struct{})
	queue := []Role{role}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}
		for _, p := range c.direct[current] {
			if _, ok := seen[p.key()]; ok {
				continue
			}
			seen[p.key()] = struct{}{}
			out = append(out, p)
		}
		queue = append(queue, c.inherits[current]...)
	}
	return out
}

func defaultDirectPermissions() map[Role][]Permission {
	return map[Role][]Permission{
		RoleSuperAdmin: {
			NewPermission("system", "manage"),
			NewPermission("users", "delete"),
			NewPermission("developers", "suspend"),
			NewPermission("audit", "configure"),
		},
		RoleAdmin: {
			NewPermission("developers", "create"),
			NewPermission("developers", "update"),
			NewPermission("developers", "read"),
			NewPermission("projects", "manage"),
			NewPermission("audit", "read"),
			NewPermission("system", "monitor"),
		},
		RoleDeveloper: {
			NewPermission("projects", "create"),
			NewPermission("projects", "update_own"),
			NewPermission("projects", "delete_own"),
			NewPermission("tokens", "generate"),
			NewPermission("tokens", "refresh"),
			NewPermission("api", "access"),
			NewPermission("profile", "update_own"),
		},
		RoleSupport: {
			NewPermission("developers", "read"),
			NewPermission("projects", "read"),
			NewPermission("tokens", "read"),
			NewPermission("support", "assist"),
		},
		RoleAuditor: {
			NewPermission("audit", "read"),
			NewPermission("compliance", "report"),
			NewPermission("logs", "read"),
			NewPermission("security", "monitor"),
		},
		RoleReadOnly: {
			NewPermission("profile", "read_own"),
			NewPermission("projects", "read_own"),
			NewPermission("documentation", "read"),
		},
	}
}

func defaultInheritance() map[Role][]Role {
	return map[Role][]Role{
		RoleSuperAdmin: {RoleAdmin, RoleDeveloper, RoleReadOnly, RoleSupport, RoleAuditor},
		RoleAdmin:      {RoleDeveloper, RoleReadOnly, RoleSupport},
		RoleDeveloper:  {RoleReadOnly},
		RoleSupport:    {RoleReadOnly},
		RoleAuditor:    {RoleReadOnly},
	}
}
