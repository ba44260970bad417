package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapFor(identity, roleName string) Snapshot {
	return Snapshot{Account: &UserAccount{AuthIdentity: identity, Role: &Role{Name: roleName}}}
}

func TestStateLoadingCycle(t *testing.T) {
	st := NewState()
	_, loading := st.Current()
	assert.False(t, loading)

	ticket := st.Begin("alice")
	snap, loading := st.Current()
	assert.True(t, loading)
	assert.False(t, snap.Authenticated())

	_, ok := st.Wait(context.Background(), 10*time.Millisecond)
	assert.False(t, ok, "wait must time out while loading")

	require.True(t, st.Complete(ticket, snapFor("alice", AdminRoleName)))
	snap, ok = st.Wait(context.Background(), 10*time.Millisecond)
	require.True(t, ok)
	assert.True(t, snap.HasPermission(ResourceUsers, ActionDelete))
}

func TestStateLastCompletionWinsWithinIdentity(t *testing.T) {
	st := NewState()
	first := st.Begin("alice")
	second := st.Begin("alice")

	require.True(t, st.Complete(second, snapFor("alice", "Dealer")))
	_, loading := st.Current()
	assert.True(t, loading, "first trigger still owns the cycle")

	require.True(t, st.Complete(first, snapFor("alice", AdminRoleName)))
	snap, loading := st.Current()
	assert.False(t, loading)
	assert.Equal(t, AdminRoleName, snap.Account.RoleName())
}

func TestStateDiscardsSupersededIdentity(t *testing.T) {
	st := NewState()
	old := st.Begin("alice")
	st.Teardown()
	fresh := st.Begin("bob")

	assert.False(t, st.Complete(old, snapFor("alice", AdminRoleName)))
	_, loading := st.Current()
	assert.True(t, loading, "stale completion must not end bob's cycle")

	require.True(t, st.Complete(fresh, snapFor("bob", DefaultRoleName)))
	snap, loading := st.Current()
	assert.False(t, loading)
	assert.Equal(t, "bob", snap.Account.AuthIdentity)
	assert.False(t, snap.HasPermission(ResourceUsers, ActionDelete))
}

func TestStateIdentitySwitchDropsPreviousGrants(t *testing.T) {
	st := NewState()
	require.True(t, st.Complete(st.Begin("alice"), snapFor("alice", AdminRoleName)))

	st.Begin("bob")
	snap, loading := st.Current()
	assert.True(t, loading)
	assert.False(t, snap.Authenticated())
}

func TestStateTrackOnlyStartsOnIdentityChange(t *testing.T) {
	st := NewState()
	ticket, ok := st.Track("alice")
	require.True(t, ok)
	_, ok = st.Track("alice")
	assert.False(t, ok)
	st.Complete(ticket, snapFor("alice", "Dealer"))

	_, ok = st.Track("bob")
	assert.True(t, ok)
}

func TestStateTeardownEndsLoading(t *testing.T) {
	st := NewState()
	st.Begin("alice")
	st.Teardown()
	snap, ok := st.Wait(context.Background(), time.Millisecond)
	assert.True(t, ok)
	assert.False(t, snap.Authenticated())
	assert.Empty(t, st.Identity())
}

func TestStateWaitUnblocksOnCompletion(t *testing.T) {
	st := NewState()
	ticket := st.Begin("alice")
	go func() {
		time.Sleep(20 * time.Millisecond)
		st.Complete(ticket, snapFor("alice", "Dealer"))
	}()
	snap, ok := st.Wait(context.Background(), 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, "Dealer", snap.Account.RoleName())
}

func TestStateWaitHonoursContext(t *testing.T) {
	st := NewState()
	st.Begin("alice")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := st.Wait(ctx, time.Second)
	assert.False(t, ok)
}

func TestAuthorizationWhileLoadingIsNotAuthoritative(t *testing.T) {
	st := NewState()
	ticket := st.Begin("alice")
	ctx := ContextWithState(context.Background(), st)

	auth := AuthorizationFromContext(ctx)
	assert.True(t, auth.IsLoading)
	assert.False(t, auth.HasPermission(ResourceBase, ActionRead))

	st.Complete(ticket, snapFor("alice", DefaultRoleName))
	auth = AuthorizationFromContext(ctx)
	assert.False(t, auth.IsLoading)
	assert.True(t, auth.HasPermission(ResourceBase, ActionRead))
}
