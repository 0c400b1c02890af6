// Package server defines the JSON wire events exchanged with clients. Every
// frame carries a "type" discriminator; unknown or malformed frames are
// discarded without affecting the connection.
package server

// Inbound event types.
const (
	EventName       = "name"
	EventCreateRoom = "createRoom"
	EventJoinRoom   = "joinRoom"
	EventLeaveRoom  = "leaveRoom"
	EventChat       = "chat"
)

// Outbound event types.
const (
	EventWelcome     = "welcome"
	EventUserList    = "userList"
	EventRooms       = "rooms"
	EventRoomCreated = "roomCreated"
	EventRoomJoined  = "roomJoined"
	EventRoomLeft    = "roomLeft"
)

// InboundEvent is the envelope for every client frame. Only the fields
// relevant to the given Type are populated.
type InboundEvent struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	RoomName string `json:"roomName,omitempty"`
	Message  string `json:"message,omitempty"`
}

// WelcomeEvent greets a connection immediately after registration.
type WelcomeEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// UserListEvent carries a snapshot of all bound identities.
type UserListEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// RoomListEvent carries a snapshot of all room names.
type RoomListEvent struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms"`
}

// RoomAckEvent acknowledges a create/join/leave request back to the acting
// client. The Type field distinguishes which operation is being acknowledged.
type RoomAckEvent struct {
	Type     string `json:"type"`
	RoomName string `json:"roomName"`
}

// ChatEvent is one fan-out delivery of a room message.
type ChatEvent struct {
	Type     string `json:"type"`
	RoomName string `json:"roomName"`
	Sender   string `json:"sender"`
	Message  string `json:"message"`
}
