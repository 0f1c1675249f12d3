// Package rbac resolves roles into permission sets and matches
// "resource:action[:scope]" permissions against them.
//
// A granted permission satisfies a required one when it is an exact match,
// a resource wildcard ("tasks:*" covers every tasks permission) or an action
// wildcard ("tasks:read:*" covers every scope of tasks:read). No other
// wildcard forms exist; "*" on its own or in the middle of a permission
// matches nothing special.
package rbac

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// DefaultRole is the most restrictive built-in role and the role given at
// registration.
const DefaultRole = "user"

var (
	ErrUnknownRole       = errors.New("rbac: unknown role")
	ErrInvalidRoleName   = errors.New("rbac: invalid role name")
	ErrEmptyRole         = errors.New("rbac: role has no permissions")
	ErrMissingBaseRole   = errors.New("rbac: base role \"user\" is not defined")
	ErrInvalidPermission = errors.New("rbac: invalid permission")
)

// Permissions are the built-in role definitions.
var Permissions = map[string][]string{
	"user": {
		"profile:read:own",
		"profile:update:own",
		"tasks:read:own",
		"tasks:create:own",
		"tasks:update:own",
		"tasks:delete:own",
	},
	"moderator": {
		"profile:read:*",
		"profile:update:own",
		"tasks:read:*",
		"tasks:update:*",
		"tasks:create:own",
		"tasks:delete:own",
	},
	"admin": {
		"profile:*",
		"tasks:*",
		"users:*",
	},
}

// Resolver maps roles to their effective permission sets. The role table is
// fixed at construction, so a Resolver is safe for concurrent use.
type Resolver struct {
	roles map[string][]string
}

// NewResolver validates the role table: role names must be lower case, every
// role needs at least one well formed permission, and the base role must exist.
// Lookups are exact, so a role is always resolved by the name it was defined
// with.
func NewResolver(roles map[string][]string) (*Resolver, error) {
	if _, ok := roles[DefaultRole]; !ok {
		return nil, ErrMissingBaseRole
	}

	table := make(map[string][]string, len(roles))
	for role, perms := range roles {
		if role == "" {
			return nil, fmt.Errorf("%w: empty role name", ErrInvalidRoleName)
		}
		if role != strings.ToLower(strings.TrimSpace(role)) {
			return nil, fmt.Errorf("%w: %q must be lower case without spaces", ErrInvalidRoleName, role)
		}
		if len(perms) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyRole, role)
		}
		for _, p := range perms {
			if err := Validate(p); err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
		}
		set := slices.Clone(perms)
		sort.Strings(set)
		table[role] = slices.Compact(set)
	}
	return &Resolver{roles: table}, nil
}

// MustNewResolver panics on an invalid table. Use for package-level defaults.
func MustNewResolver(roles map[string][]string) *Resolver {
	r, err := NewResolver(roles)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns a copy of the permission set for role.
func (r *Resolver) Resolve(role string) ([]string, error) {
	perms, ok := r.roles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return slices.Clone(perms), nil
}

// HasRole reports whether role is defined.
func (r *Resolver) HasRole(role string) bool {
	_, ok := r.roles[role]
	return ok
}

// Roles lists the defined roles in sorted order.
func (r *Resolver) Roles() []string {
	out := make([]string, 0, len(r.roles))
	for role := range r.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Can reports whether role is granted required.
func (r *Resolver) Can(role, required string) bool {
	return Check(r.roles[role], required)
}

// Check reports whether any permission in granted satisfies required.
func Check(granted []string, required string) bool {
	for _, g := range granted {
		if Match(g, required) {
			return true
		}
	}
	return false
}

// Match reports whether a single granted permission satisfies required.
func Match(granted, required string) bool {
	if granted == "" || required == "" {
		return false
	}
	if granted == required {
		return true
	}

	g := strings.Split(granted, ":")
	q := strings.Split(required, ":")
	if len(q) < 2 || len(q) > 3 {
		return false
	}

	switch {
	case len(g) == 2 && g[1] == "*":
		// resource wildcard
		return g[0] == q[0]
	case len(g) == 3 && g[2] == "*":
		// action wildcard
		return len(q) == 3 && g[0] == q[0] && g[1] == q[1]
	}
	return false
}

// Validate checks that p has two or three non-empty segments and that a
// "*" only appears where a wildcard is defined.
func Validate(p string) error {
	parts := strings.Split(p, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("%w: %q", ErrInvalidPermission, p)
	}
	for i, part := range parts {
		if part == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPermission, p)
		}
		if part == "*" && i != len(parts)-1 {
			return fmt.Errorf("%w: %q wildcard must be last", ErrInvalidPermission, p)
		}
		if part == "*" && i == 0 {
			return fmt.Errorf("%w: %q resource cannot be a wildcard", ErrInvalidPermission, p)
		}
	}
	return nil
}
