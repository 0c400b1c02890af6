// Package server coordinates connection registration, event dispatch, and
// presence broadcasting for the relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// inboundFrame is one raw frame handed from a read pump to the run loop.
type inboundFrame struct {
	client  *Client
	payload []byte
}

// Hub owns the connection lifecycle and serializes all event handling onto
// its run loop: registrations, disconnects, inbound frames, and presence
// ticks are processed one at a time, so registry mutations and session
// transitions never interleave. The clients map is touched only from the run
// loop.
type Hub struct {
	registry *Registry
	router   *Router

	clients    map[*Client]bool
	inbound    chan inboundFrame
	register   chan *Client
	unregister chan *Client

	presenceInterval time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub operating on the given registry. The presence
// broadcast cadence is taken from the active configuration.
func NewHub(registry *Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:         registry,
		router:           NewRouter(registry),
		clients:          make(map[*Client]bool),
		inbound:          make(chan inboundFrame),
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		presenceInterval: currentConfig().PresenceInterval,
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
	}
}

// Registry returns the registry this hub operates on.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// GetRegisterChan returns the channel used to hand new clients to the hub.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used to request client removal.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run executes the hub's event loop until Shutdown is called. It should be
// started in its own goroutine. The presence ticker runs for the lifetime of
// the loop; it is not cancellable separately from the hub itself.
func (h *Hub) Run() {
	defer close(h.done)

	ticker := time.NewTicker(h.presenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case frame := <-h.inbound:
			h.router.Dispatch(frame.client, frame.payload)

		case <-ticker.C:
			h.router.BroadcastPresence()
		}
	}
}

// handleRegister adds the client, starts its pumps, and greets it. The
// welcome is enqueued before the read pump can deliver any frame to the run
// loop, so it is always the first event a peer receives.
func (h *Hub) handleRegister(client *Client) {
	client.closed = false
	h.clients[client] = true
	log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, len(h.clients))

	client.trySend(encodeEvent(WelcomeEvent{
		Type:    EventWelcome,
		Message: "Welcome to the chat. Please provide your name.",
	}))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// handleUnregister removes the client and runs disconnect cleanup. Cleanup
// fires a presence broadcast even for clients that never named themselves.
func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.closed = true
	close(client.send)

	h.router.HandleDisconnect(client)
	log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, len(h.clients))
}

// shutdownClients closes every active connection during hub shutdown.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	count := 0
	for client := range h.clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing client connection from %s: %v", client.addr, err)
			}
		}
		count++
	}

	log.Printf("Closed %d client connections", count)
}

// Shutdown stops the run loop, closes all connections, and waits for pump
// goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
