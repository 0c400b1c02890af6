// Package integration contains end-to-end tests that exercise the relay over
// real WebSocket connections.
package integration

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt/roomcast/internal/server"
	"github.com/veldt/roomcast/test/testhelpers"
)

const receiveTimeout = 2 * time.Second

// startRelay boots a fully wired relay on an httptest server. The periodic
// presence interval is set far out so tests only observe deterministic,
// disconnect-triggered broadcasts.
func startRelay(t *testing.T) (*server.Hub, string) {
	t.Helper()

	config := server.NewConfig()
	config.AllowedOrigins = []string{testhelpers.TestOrigin}
	config.RateLimit.Burst = 100
	config.PresenceInterval = time.Hour
	server.SetConfig(config)
	t.Cleanup(func() { server.SetConfig(nil) })

	hub := server.NewHub(server.NewRegistry())
	go hub.Run()

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		_ = hub.Shutdown(5 * time.Second)
		ts.Close()
	})

	return hub, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// connectAndWelcome dials the relay and consumes the welcome event.
func connectAndWelcome(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, err := testhelpers.ConnectWebSocket(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := testhelpers.ReceiveEvent(t, conn, receiveTimeout)
	require.Equal(t, "welcome", welcome["type"])
	return conn
}

// setName sends a name event and consumes the userList reply.
func setName(t *testing.T, conn *websocket.Conn, name string) map[string]interface{} {
	t.Helper()

	require.NoError(t, testhelpers.SendEvent(conn, map[string]string{"type": "name", "username": name}))
	reply := testhelpers.WaitForEventType(t, conn, "userList", receiveTimeout)
	return reply
}

func TestWelcomeIsFirstEventOnConnect(t *testing.T) {
	_, url := startRelay(t)

	conn, err := testhelpers.ConnectWebSocket(url)
	require.NoError(t, err)
	defer conn.Close()

	welcome := testhelpers.ReceiveEvent(t, conn, receiveTimeout)
	assert.Equal(t, "welcome", welcome["type"])
	assert.NotEmpty(t, welcome["message"])
}

func TestFullChatScenario(t *testing.T) {
	hub, url := startRelay(t)

	alice := connectAndWelcome(t, url)
	userList := setName(t, alice, "alice")
	assert.Equal(t, []string{"alice"}, testhelpers.StringSlice(t, userList["users"]))

	require.NoError(t, testhelpers.SendEvent(alice, map[string]string{"type": "createRoom", "roomName": "general"}))
	created := testhelpers.WaitForEventType(t, alice, "roomCreated", receiveTimeout)
	assert.Equal(t, "general", created["roomName"])

	members, ok := hub.Registry().Members("general")
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, members)

	bob := connectAndWelcome(t, url)
	userList = setName(t, bob, "bob")
	assert.Equal(t, []string{"alice", "bob"}, testhelpers.StringSlice(t, userList["users"]))

	require.NoError(t, testhelpers.SendEvent(bob, map[string]string{"type": "joinRoom", "roomName": "general"}))
	joined := testhelpers.WaitForEventType(t, bob, "roomJoined", receiveTimeout)
	assert.Equal(t, "general", joined["roomName"])

	members, ok = hub.Registry().Members("general")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"alice", "bob"}, members)

	require.NoError(t, testhelpers.SendEvent(alice, map[string]string{
		"type": "chat", "roomName": "general", "message": "hi",
	}))
	for _, conn := range []*websocket.Conn{alice, bob} {
		chat := testhelpers.WaitForEventType(t, conn, "chat", receiveTimeout)
		assert.Equal(t, "general", chat["roomName"])
		assert.Equal(t, "alice", chat["sender"])
		assert.Equal(t, "hi", chat["message"])
	}

	// Bob drops; alice gets the disconnect-triggered presence push and the
	// registry no longer references bob anywhere.
	require.NoError(t, bob.Close())

	users := testhelpers.WaitForEventType(t, alice, "userList", receiveTimeout)
	assert.Equal(t, []string{"alice"}, testhelpers.StringSlice(t, users["users"]))
	rooms := testhelpers.WaitForEventType(t, alice, "rooms", receiveTimeout)
	assert.Equal(t, []string{"general"}, testhelpers.StringSlice(t, rooms["rooms"]))

	members, ok = hub.Registry().Members("general")
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, members)
	_, bound := hub.Registry().Resolve("bob")
	assert.False(t, bound)
}

func TestMalformedFrameDoesNotAffectOthers(t *testing.T) {
	hub, url := startRelay(t)

	sender := connectAndWelcome(t, url)
	setName(t, sender, "alice")
	observer := connectAndWelcome(t, url)
	setName(t, observer, "bob")

	require.NoError(t, testhelpers.SendRawMessage(sender, websocket.TextMessage, []byte("this is not json")))
	require.NoError(t, testhelpers.SendRawMessage(sender, websocket.TextMessage, []byte(`{"type":"mystery"}`)))

	testhelpers.AssertNoEvent(t, observer, 300*time.Millisecond)
	assert.Equal(t, []string{"alice", "bob"}, hub.Registry().Identities())
	assert.Empty(t, hub.Registry().RoomNames())

	// The offending connection survives and keeps working.
	require.NoError(t, testhelpers.SendEvent(sender, map[string]string{"type": "createRoom", "roomName": "general"}))
	created := testhelpers.WaitForEventType(t, sender, "roomCreated", receiveTimeout)
	assert.Equal(t, "general", created["roomName"])
}

func TestEventsBeforeNameAreDropped(t *testing.T) {
	hub, url := startRelay(t)

	conn := connectAndWelcome(t, url)

	require.NoError(t, testhelpers.SendEvent(conn, map[string]string{"type": "joinRoom", "roomName": "general"}))
	require.NoError(t, testhelpers.SendEvent(conn, map[string]string{
		"type": "chat", "roomName": "general", "message": "too early",
	}))

	// Give the server time to process; nothing may have been registered.
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, hub.Registry().Identities())
	assert.Empty(t, hub.Registry().RoomNames())

	// Naming afterwards works normally, and the userList reply is the very
	// next event: the early frames produced no queued acknowledgments.
	require.NoError(t, testhelpers.SendEvent(conn, map[string]string{"type": "name", "username": "alice"}))
	reply := testhelpers.ReceiveEvent(t, conn, receiveTimeout)
	assert.Equal(t, "userList", reply["type"])
	assert.Equal(t, []string{"alice"}, testhelpers.StringSlice(t, reply["users"]))
}

func TestIdentityTakeoverRoutesToNewestConnection(t *testing.T) {
	_, url := startRelay(t)

	first := connectAndWelcome(t, url)
	setName(t, first, "alice")
	require.NoError(t, testhelpers.SendEvent(first, map[string]string{"type": "createRoom", "roomName": "general"}))
	testhelpers.WaitForEventType(t, first, "roomCreated", receiveTimeout)

	second := connectAndWelcome(t, url)
	setName(t, second, "alice")

	// "alice" now resolves to the second connection; its chat fans out to
	// itself as the room member, while the first connection gets nothing.
	require.NoError(t, testhelpers.SendEvent(second, map[string]string{
		"type": "chat", "roomName": "general", "message": "hello",
	}))

	chat := testhelpers.WaitForEventType(t, second, "chat", receiveTimeout)
	assert.Equal(t, "alice", chat["sender"])
	testhelpers.AssertNoEvent(t, first, 300*time.Millisecond)
}

func TestRejectedOriginCannotConnect(t *testing.T) {
	_, url := startRelay(t)

	_, err := testhelpers.ConnectWebSocketWithOrigin(url, "http://evil.example.com")
	assert.Error(t, err)
}
