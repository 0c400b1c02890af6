package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(nil, nil, "127.0.0.1:12345")
}

func TestBindLastWriterWins(t *testing.T) {
	reg := NewRegistry()
	c1 := newTestClient()
	c2 := newTestClient()

	reg.Bind("alice", c1)
	reg.Bind("alice", c2)

	resolved, ok := reg.Resolve("alice")
	require.True(t, ok)
	assert.Same(t, c2, resolved, "later bind must evict the earlier connection")
	assert.Equal(t, []string{"alice"}, reg.Identities())
}

func TestResolveUnknownIdentity(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Resolve("nobody")
	assert.False(t, ok)
}

func TestUnbindIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := newTestClient()

	reg.Bind("alice", c)
	reg.Unbind("alice")
	reg.Unbind("alice")

	_, ok := reg.Resolve("alice")
	assert.False(t, ok)
	assert.Empty(t, reg.Identities())
	assert.Empty(t, reg.ActiveConnections())
}

func TestIdentitiesSnapshotKeepsBindOrder(t *testing.T) {
	reg := NewRegistry()

	reg.Bind("alice", newTestClient())
	reg.Bind("bob", newTestClient())
	reg.Bind("carol", newTestClient())
	// Rebinding must not reshuffle the snapshot order.
	reg.Bind("alice", newTestClient())

	assert.Equal(t, []string{"alice", "bob", "carol"}, reg.Identities())
}

func TestActiveConnectionsTracksBindings(t *testing.T) {
	reg := NewRegistry()
	named := newTestClient()
	anonymous := newTestClient()

	reg.Bind("alice", named)

	active := reg.ActiveConnections()
	assert.Contains(t, active, named)
	assert.NotContains(t, active, anonymous)
}

func TestCreateRoomResetsMembership(t *testing.T) {
	reg := NewRegistry()
	reg.Bind("alice", newTestClient())
	reg.Bind("bob", newTestClient())

	reg.CreateRoom("general", "alice")
	require.True(t, reg.JoinRoom("general", "bob"))

	// Re-creating an existing room resets its member set to just the creator.
	reg.CreateRoom("general", "bob")

	members, ok := reg.Members("general")
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, members)
	assert.Equal(t, []string{"general"}, reg.RoomNames())
}

func TestJoinMissingRoomDoesNotCreateIt(t *testing.T) {
	reg := NewRegistry()

	joined := reg.JoinRoom("ghost", "alice")

	assert.False(t, joined)
	assert.Empty(t, reg.RoomNames())
	_, ok := reg.Members("ghost")
	assert.False(t, ok)
}

func TestLeaveLastMemberDeletesRoom(t *testing.T) {
	reg := NewRegistry()

	reg.CreateRoom("general", "alice")
	reg.LeaveRoom("general", "alice")

	assert.NotContains(t, reg.RoomNames(), "general")
	_, ok := reg.Members("general")
	assert.False(t, ok)
}

func TestLeaveMissingRoomIsNoop(t *testing.T) {
	reg := NewRegistry()

	reg.LeaveRoom("ghost", "alice")

	assert.Empty(t, reg.RoomNames())
}

func TestLeaveKeepsRoomWithRemainingMembers(t *testing.T) {
	reg := NewRegistry()

	reg.CreateRoom("general", "alice")
	require.True(t, reg.JoinRoom("general", "bob"))
	reg.LeaveRoom("general", "alice")

	members, ok := reg.Members("general")
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, members)
}

func TestRemoveIdentityEverywhere(t *testing.T) {
	reg := NewRegistry()

	reg.CreateRoom("general", "alice")
	require.True(t, reg.JoinRoom("general", "bob"))
	reg.CreateRoom("private", "alice")

	reg.RemoveIdentityEverywhere("alice")

	members, ok := reg.Members("general")
	require.True(t, ok)
	assert.NotContains(t, members, "alice")
	assert.Contains(t, members, "bob")

	// alice was the only member of private, so it must be gone.
	_, ok = reg.Members("private")
	assert.False(t, ok)
	assert.Equal(t, []string{"general"}, reg.RoomNames())
}

func TestRoomNamesKeepCreationOrder(t *testing.T) {
	reg := NewRegistry()

	reg.CreateRoom("one", "alice")
	reg.CreateRoom("two", "alice")
	reg.CreateRoom("three", "alice")

	assert.Equal(t, []string{"one", "two", "three"}, reg.RoomNames())
}

func TestRegistriesAreIndependent(t *testing.T) {
	regA := NewRegistry()
	regB := NewRegistry()

	regA.Bind("alice", newTestClient())
	regA.CreateRoom("general", "alice")

	assert.Empty(t, regB.Identities())
	assert.Empty(t, regB.RoomNames())
}

func TestConcurrentRegistryOperations(t *testing.T) {
	reg := NewRegistry()
	reg.CreateRoom("general", "seed")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			identity := fmt.Sprintf("user-%d", n)
			reg.Bind(identity, newTestClient())
			reg.JoinRoom("general", identity)
			reg.Identities()
			reg.Members("general")
			reg.LeaveRoom("general", identity)
			reg.Unbind(identity)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, reg.Identities(), "no transient identities may survive")
	members, ok := reg.Members("general")
	require.True(t, ok)
	assert.Equal(t, []string{"seed"}, members)
}
