package rbac_test

import (
	"testing"

	"github.com/aussiebroadwan/authcore/pkg/rbac"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		granted  string
		required string
		want     bool
	}{
		{"exact", "tasks:read:own", "tasks:read:own", true},
		{"exact two part", "tasks:read", "tasks:read", true},
		{"resource wildcard covers scoped", "tasks:*", "tasks:read:own", true},
		{"resource wildcard covers unscoped", "tasks:*", "tasks:delete", true},
		{"action wildcard", "tasks:read:*", "tasks:read:any", true},
		{"action wildcard wrong action", "tasks:read:*", "tasks:update:own", false},
		{"action wildcard needs scope", "tasks:read:*", "tasks:read", false},
		{"different action", "tasks:read:own", "tasks:update:own", false},
		{"different resource", "tasks:*", "users:read:own", false},
		{"prefix is not a match", "task:*", "tasks:read", false},
		{"scope is not hierarchical", "tasks:read", "tasks:read:own", false},
		{"bare star is not a wildcard", "*", "tasks:read", false},
		{"middle star is not a wildcard", "tasks:*:own", "tasks:read:own", false},
		{"empty granted", "", "tasks:read", false},
		{"malformed required", "tasks:*", "tasks", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, rbac.Match(tt.granted, tt.required))
		})
	}
}

func TestCheck(t *testing.T) {
	require.True(t, rbac.Check([]string{"tasks:*"}, "tasks:read:own"))
	require.False(t, rbac.Check([]string{"tasks:read:own"}, "tasks:update:own"))
	require.True(t, rbac.Check([]string{"tasks:read:*"}, "tasks:read:any"))
	require.True(t, rbac.Check([]string{"profile:read:own", "tasks:read:*"}, "tasks:read:any"))
	require.False(t, rbac.Check(nil, "tasks:read:own"))
}

func TestNewResolver(t *testing.T) {
	r, err := rbac.NewResolver(rbac.Permissions)
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "moderator", "user"}, r.Roles())

	t.Run("requires base role", func(t *testing.T) {
		_, err := rbac.NewResolver(map[string][]string{"admin": {"tasks:*"}})
		require.ErrorIs(t, err, rbac.ErrMissingBaseRole)
	})

	t.Run("rejects empty role", func(t *testing.T) {
		_, err := rbac.NewResolver(map[string][]string{"user": {"tasks:read:own"}, "guest": nil})
		require.ErrorIs(t, err, rbac.ErrEmptyRole)
	})

	t.Run("rejects invalid permissions", func(t *testing.T) {
		for _, p := range []string{"tasks", "a:b:c:d", "tasks::own", "*:read", "tasks:*:own"} {
			_, err := rbac.NewResolver(map[string][]string{"user": {p}})
			require.ErrorIs(t, err, rbac.ErrInvalidPermission, p)
		}
	})

	t.Run("rejects non-canonical role names", func(t *testing.T) {
		for _, name := range []string{"", "Admin", " admin", "ADMIN"} {
			_, err := rbac.NewResolver(map[string][]string{"user": {"tasks:read:own"}, name: {"tasks:*"}})
			require.ErrorIs(t, err, rbac.ErrInvalidRoleName, name)
		}
	})

	t.Run("panics via Must", func(t *testing.T) {
		require.Panics(t, func() { rbac.MustNewResolver(nil) })
	})
}

func TestResolver_Resolve(t *testing.T) {
	r := rbac.MustNewResolver(map[string][]string{
		"user":  {"tasks:read:own", "tasks:read:own", "profile:read:own"},
		"admin": {"tasks:*"},
	})

	perms, err := r.Resolve("user")
	require.NoError(t, err)
	require.Equal(t, []string{"profile:read:own", "tasks:read:own"}, perms, "sorted and deduplicated")

	// Callers get a copy.
	perms[0] = "mutated:read"
	again, err := r.Resolve("user")
	require.NoError(t, err)
	require.Equal(t, "profile:read:own", again[0])

	_, err = r.Resolve("ghost")
	require.ErrorIs(t, err, rbac.ErrUnknownRole)

	require.True(t, r.Can("admin", "tasks:delete:any"))
	require.False(t, r.Can("user", "tasks:delete:any"))
	require.False(t, r.Can("ghost", "tasks:read:own"))
	require.True(t, r.HasRole("admin"))
}

func TestBuiltInRoles(t *testing.T) {
	r := rbac.MustNewResolver(rbac.Permissions)

	require.True(t, r.Can("user", "tasks:read:own"))
	require.False(t, r.Can("user", "tasks:read:any"))
	require.True(t, r.Can("moderator", "tasks:read:any"))
	require.False(t, r.Can("moderator", "users:delete:any"))
	require.True(t, r.Can("admin", "users:delete:any"))
}
