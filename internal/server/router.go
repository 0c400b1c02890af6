// Package server routes inbound events against the registry and produces
// outbound deliveries. The Router owns no state of its own; it mutates the
// Registry it was constructed with and enqueues responses on clients.
package server

import (
	"encoding/json"
	"log"
)

// Router interprets inbound frames. All methods must be called from a single
// goroutine (the hub run loop in production); the registry itself is locked,
// but session identity transitions are only safe when dispatch is serialized.
type Router struct {
	registry *Registry
}

// NewRouter creates a Router operating on the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Dispatch parses one frame and applies it. Malformed payloads and unknown
// event types are discarded: no registry mutation, no outbound event, and the
// connection stays up regardless of what the peer sent.
func (rt *Router) Dispatch(c *Client, payload []byte) {
	var event InboundEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("Discarding malformed frame from client %s: %v", c.id, err)
		return
	}

	if event.Type == EventName {
		rt.handleName(c, event)
		return
	}

	// Everything past this point requires a named session. An anonymous
	// client cannot match any room membership, so these are dropped.
	if c.identity == "" {
		log.Printf("Dropping %q event from anonymous client %s", event.Type, c.id)
		return
	}

	switch event.Type {
	case EventCreateRoom:
		rt.handleCreateRoom(c, event)
	case EventJoinRoom:
		rt.handleJoinRoom(c, event)
	case EventLeaveRoom:
		rt.handleLeaveRoom(c, event)
	case EventChat:
		rt.handleChat(c, event)
	default:
		log.Printf("Discarding frame with unknown type %q from client %s", event.Type, c.id)
	}
}

// handleName binds the client to the requested display name and replies with
// a snapshot of all bound identities. A rebind for an already-named client
// releases its previous name first so disconnect cleanup stays total. The
// binding itself is last-writer-wins: naming yourself after someone else
// silently takes the name over.
func (rt *Router) handleName(c *Client, event InboundEvent) {
	if event.Username == "" {
		log.Printf("Discarding name event with empty username from client %s", c.id)
		return
	}

	if c.identity != "" && c.identity != event.Username {
		rt.registry.Unbind(c.identity)
	}
	c.identity = event.Username
	rt.registry.Bind(event.Username, c)
	log.Printf("Client %s bound identity %q", c.id, event.Username)

	rt.sendEvent(c, UserListEvent{Type: EventUserList, Users: rt.registry.Identities()})
}

// handleCreateRoom creates (or resets) the room with the sender as its only
// member and acknowledges the sender.
func (rt *Router) handleCreateRoom(c *Client, event InboundEvent) {
	if event.RoomName == "" {
		log.Printf("Discarding createRoom event with empty room name from client %s", c.id)
		return
	}

	rt.registry.CreateRoom(event.RoomName, c.identity)
	log.Printf("Identity %q created room %q", c.identity, event.RoomName)

	rt.sendEvent(c, RoomAckEvent{Type: EventRoomCreated, RoomName: event.RoomName})
}

// handleJoinRoom adds the sender to an existing room. The ack is sent even
// when the room does not exist; the join itself is then a silent no-op.
func (rt *Router) handleJoinRoom(c *Client, event InboundEvent) {
	if event.RoomName == "" {
		log.Printf("Discarding joinRoom event with empty room name from client %s", c.id)
		return
	}

	if rt.registry.JoinRoom(event.RoomName, c.identity) {
		log.Printf("Identity %q joined room %q", c.identity, event.RoomName)
	} else {
		log.Printf("Identity %q attempted to join missing room %q", c.identity, event.RoomName)
	}

	rt.sendEvent(c, RoomAckEvent{Type: EventRoomJoined, RoomName: event.RoomName})
}

// handleLeaveRoom removes the sender from a room. As with join, the ack is
// sent whether or not the room existed.
func (rt *Router) handleLeaveRoom(c *Client, event InboundEvent) {
	if event.RoomName == "" {
		log.Printf("Discarding leaveRoom event with empty room name from client %s", c.id)
		return
	}

	rt.registry.LeaveRoom(event.RoomName, c.identity)
	log.Printf("Identity %q left room %q", c.identity, event.RoomName)

	rt.sendEvent(c, RoomAckEvent{Type: EventRoomLeft, RoomName: event.RoomName})
}

// handleChat fans one message out to every member of the room, sender
// included. A chat against a missing room, or from a non-member, is dropped
// entirely: no fan-out and no error reply. Members whose connection cannot
// be resolved or whose buffer is full are skipped; one dead recipient never
// aborts delivery to the rest.
func (rt *Router) handleChat(c *Client, event InboundEvent) {
	if event.RoomName == "" {
		log.Printf("Discarding chat event with empty room name from client %s", c.id)
		return
	}

	members, exists := rt.registry.Members(event.RoomName)
	if !exists {
		log.Printf("Dropping chat from %q to missing room %q", c.identity, event.RoomName)
		return
	}
	if !containsString(members, c.identity) {
		log.Printf("Dropping chat from non-member %q to room %q", c.identity, event.RoomName)
		return
	}

	data := encodeEvent(ChatEvent{
		Type:     EventChat,
		RoomName: event.RoomName,
		Sender:   c.identity,
		Message:  event.Message,
	})
	delivered := 0
	for _, member := range members {
		recipient, ok := rt.registry.Resolve(member)
		if !ok {
			continue
		}
		if recipient.trySend(data) {
			delivered++
		}
	}
	log.Printf("Chat from %q fanned out to %d of %d members of room %q",
		c.identity, delivered, len(members), event.RoomName)
}

// HandleDisconnect performs total cleanup for a closing connection: the
// identity is unbound, removed from every room (empty rooms are deleted),
// and the connection leaves the active set. A presence broadcast then goes
// to all remaining active connections, whether or not the client was named.
func (rt *Router) HandleDisconnect(c *Client) {
	if c.identity != "" {
		rt.registry.Unbind(c.identity)
		rt.registry.RemoveIdentityEverywhere(c.identity)
	}
	rt.registry.DropConnection(c)
	rt.BroadcastPresence()
}

// BroadcastPresence pushes the current identity list and room list, as two
// separate events, to every active connection. Sends are fire-and-forget; a
// slow or dead peer is skipped.
func (rt *Router) BroadcastPresence() {
	users := encodeEvent(UserListEvent{Type: EventUserList, Users: rt.registry.Identities()})
	rooms := encodeEvent(RoomListEvent{Type: EventRooms, Rooms: rt.registry.RoomNames()})

	for _, client := range rt.registry.ActiveConnections() {
		client.trySend(users)
		client.trySend(rooms)
	}
}

// sendEvent encodes and enqueues a unicast event. Delivery failures are
// swallowed; no inbound event ever produces a user-visible error.
func (rt *Router) sendEvent(c *Client, event interface{}) {
	if !c.trySend(encodeEvent(event)) {
		log.Printf("Dropped outbound event for client %s (buffer full or closed)", c.id)
	}
}

// encodeEvent marshals an outbound event, returning nil on failure so the
// send path can skip it. The event types here cannot realistically fail to
// marshal, but a nil payload must never reach the wire.
func encodeEvent(event interface{}) []byte {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding outbound event: %v", err)
		return nil
	}
	return data
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
