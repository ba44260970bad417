package e2e

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/dealerhub/internal/rbac"
)

func TestRolePermissionChangeReachesLiveSessions(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	st := s.registry.Ensure(ctx, "live-session", "dealer-1")
	snap, ok := st.Wait(ctx, time.Second)
	require.True(t, ok)
	require.False(t, snap.HasPermission(rbac.ResourcePricing, rbac.ActionRead))
	require.Equal(t, http.StatusForbidden, s.get("/pricing", "dealer-1"))

	before, err := s.cache.Version(ctx)
	require.NoError(t, err)
	_, err = s.roles.SetPermissions(ctx, "admin", 3, []string{"dealers.read", "pricing.read"})
	require.NoError(t, err)

	after, err := s.cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	assert.Eventually(t, func() bool {
		snap, loading := st.Current()
		return !loading && snap.HasPermission(rbac.ResourcePricing, rbac.ActionRead)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusOK, s.get("/pricing", "dealer-1"))
}

func TestRevokedPermissionIsDeniedAfterBump(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.roles.SetPermissions(ctx, "admin", 3, []string{"pricing.read"})
	require.NoError(t, err)
	st := s.registry.Ensure(ctx, "live-session", "dealer-1")
	snap, ok := st.Wait(ctx, time.Second)
	require.True(t, ok)
	require.True(t, snap.HasPermission(rbac.ResourcePricing, rbac.ActionRead))

	_, err = s.roles.SetPermissions(ctx, "admin", 3, []string{"dealers.read"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		snap, loading := st.Current()
		return !loading && !snap.HasPermission(rbac.ResourcePricing, rbac.ActionRead)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusForbidden, s.get("/pricing", "dealer-1"))
}

func TestUnknownPermissionLeavesRoleUntouched(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	before, err := s.cache.Version(ctx)
	require.NoError(t, err)
	_, err = s.roles.SetPermissions(ctx, "admin", 3, []string{"pricing.read", "pricing.approve"})
	require.Error(t, err)

	after, err := s.cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, http.StatusForbidden, s.get("/pricing", "dealer-1"))
}
