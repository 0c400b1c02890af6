// Package server implements a room-based WebSocket message relay with
// ephemeral in-memory presence.
//
// Clients connect, bind a display name, create/join/leave named rooms, and
// exchange chat messages that fan out to all current room members. The
// Registry holds all shared state, the Router interprets events, and the Hub
// serializes everything onto a single run loop. Nothing is persisted; all
// state is lost on restart.
package server
