// Package server implements the Registry, the single owned aggregate that
// tracks bound identities, room membership, and the set of connections
// eligible for presence pushes.
package server

import "sync"

// Registry holds all in-memory relay state: the identity-to-connection
// mapping, the room membership sets, and the active-connections set that
// presence broadcasts target. Every method takes the registry mutex, so each
// operation is atomic and snapshots are internally consistent. State is
// ephemeral; nothing survives a restart.
//
// Bind and room-creation order are retained so that Identities and RoomNames
// return stable snapshots for a single broadcast.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]*Client
	bindOrder  []string
	active     map[*Client]struct{}
	rooms      map[string]map[string]struct{}
	roomOrder  []string
}

// NewRegistry creates an empty Registry. Each Registry is independent;
// multiple instances may coexist in one process.
func NewRegistry() *Registry {
	return &Registry{
		identities: make(map[string]*Client),
		active:     make(map[*Client]struct{}),
		rooms:      make(map[string]map[string]struct{}),
	}
}

// Bind registers or overwrites the identity-to-connection mapping. It never
// fails: a later bind for the same identity silently evicts the earlier one
// (the evicted connection is not closed, it just becomes unreachable by
// name). The connection is added to the active-connections set.
func (r *Registry) Bind(identity string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.identities[identity]; !exists {
		r.bindOrder = append(r.bindOrder, identity)
	}
	r.identities[identity] = client
	r.active[client] = struct{}{}
}

// Resolve returns the connection currently bound to identity.
func (r *Registry) Resolve(identity string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.identities[identity]
	return client, ok
}

// Unbind removes the identity mapping and drops the bound connection from
// the active set. It is idempotent; unbinding an unknown identity is a no-op.
func (r *Registry) Unbind(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.identities[identity]
	if !ok {
		return
	}
	delete(r.identities, identity)
	r.bindOrder = removeString(r.bindOrder, identity)
	delete(r.active, client)
}

// DropConnection removes a connection from the active set without touching
// any identity binding. Used during disconnect bookkeeping so a closing
// connection never receives another presence push.
func (r *Registry) DropConnection(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, client)
}

// Identities returns a snapshot of all bound identity names in bind order.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.bindOrder...)
}

// ActiveConnections returns a snapshot of every connection eligible for
// presence pushes. Connections enter this set on their first Bind, so
// anonymous connections are never included.
func (r *Registry) ActiveConnections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.active))
	for client := range r.active {
		clients = append(clients, client)
	}
	return clients
}

// CreateRoom sets the room's member set to exactly {creator}. Creating a
// room that already exists resets its membership; the room keeps its
// original position in the room-name order.
func (r *Registry) CreateRoom(name, creator string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[name]; !exists {
		r.roomOrder = append(r.roomOrder, name)
	}
	r.rooms[name] = map[string]struct{}{creator: {}}
}

// JoinRoom adds identity to the room's member set. It reports whether the
// room existed; joining a missing room has no side effects and does not
// create the room.
func (r *Registry) JoinRoom(name, identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[name]
	if !exists {
		return false
	}
	members[identity] = struct{}{}
	return true
}

// LeaveRoom removes identity from the room's member set, deleting the room
// if it becomes empty. A missing room or non-member identity is a no-op.
func (r *Registry) LeaveRoom(name, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(name, identity)
}

// RemoveIdentityEverywhere removes identity from every room, deleting any
// room left empty. Used on disconnect so no room retains a stale member.
func (r *Registry) RemoveIdentityEverywhere(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string(nil), r.roomOrder...)
	for _, name := range names {
		r.leaveLocked(name, identity)
	}
}

// Members returns a snapshot of the room's membership, or false if the room
// does not exist. Order is not significant.
func (r *Registry) Members(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, exists := r.rooms[name]
	if !exists {
		return nil, false
	}
	snapshot := make([]string, 0, len(members))
	for identity := range members {
		snapshot = append(snapshot, identity)
	}
	return snapshot, true
}

// RoomNames returns a snapshot of all room names in creation order.
func (r *Registry) RoomNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.roomOrder...)
}

// leaveLocked removes identity from one room and garbage-collects the room
// if its member set becomes empty. Callers must hold r.mu.
func (r *Registry) leaveLocked(name, identity string) {
	members, exists := r.rooms[name]
	if !exists {
		return
	}
	delete(members, identity)
	if len(members) == 0 {
		delete(r.rooms, name)
		r.roomOrder = removeString(r.roomOrder, name)
	}
}

func removeString(values []string, target string) []string {
	for i, v := range values {
		if v == target {
			return append(values[:i], values[i+1:]...)
		}
	}
	return values
}
