// Package server coordinates room membership, message fan-out, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// roomMessage is a payload queued for fan-out to every member of one room.
type roomMessage struct {
	Room    string
	Payload []byte
}

// Hub is the room registry: it maps room names to the set of currently
// connected clients and serializes join/leave/broadcast through its event
// loop. Member sets are guarded by the mutex so broadcasts iterate a
// snapshot while leaves proceed concurrently. The hub is built once in main
// and injected wherever it is needed; there is no package-level instance.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan roomMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *zap.Logger
}

// NewHub creates a Hub ready to manage room memberships. Run must be called
// for registrations and broadcasts to be processed.
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan roomMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run drains the hub's event loop: client registration, unregistration, and
// room broadcasts. Call it in its own goroutine; it returns only after
// Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("ignoring nil client registration")
				continue
			}
			members := h.addClient(client)
			h.logger.Info("client joined room",
				zap.String("client_id", client.id),
				zap.String("room", client.room),
				zap.Int("members", members))

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

			// Welcome goes to the joining client only, never to the room.
			h.deliver(client, welcomePayload(client.room))

		case client := <-h.unregister:
			if removed, members := h.removeClient(client); removed {
				h.logger.Info("client left room",
					zap.String("client_id", client.id),
					zap.String("room", client.room),
					zap.Int("members", members))
			}

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// addClient registers the client under its room, creating the member set on
// first join. Returns the room's member count after the join.
func (h *Hub) addClient(client *Client) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	members, ok := h.rooms[client.room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[client.room] = members
	}
	client.closed = false
	members[client] = true
	return len(members)
}

// removeClient drops the client from its room's member set and prunes the
// room entry once empty. Safe to call for a client that was never registered
// or was already removed; the send channel is closed exactly once, on the
// call that actually removes the client.
func (h *Hub) removeClient(client *Client) (bool, int) {
	if client == nil {
		return false, 0
	}

	h.mutex.Lock()
	members, ok := h.rooms[client.room]
	if !ok || !members[client] {
		h.mutex.Unlock()
		return false, 0
	}
	delete(members, client)
	client.closed = true
	remaining := len(members)
	if remaining == 0 {
		delete(h.rooms, client.room)
	}
	h.mutex.Unlock()

	// Close outside the lock so a blocked writePump can drain.
	close(client.send)
	return true, remaining
}

// fanOut delivers the payload to every client currently registered under the
// room, including the sender: the echoed copy is the sender's confirmation
// that the message was accepted. Delivery is best-effort per recipient; a
// client whose send buffer is full or closed is removed without affecting
// the rest.
func (h *Hub) fanOut(msg roomMessage) {
	members := h.roomSnapshot(msg.Room)
	if len(members) == 0 {
		return
	}

	var failed []*Client
	for _, client := range members {
		if !h.deliver(client, msg.Payload) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		if removed, _ := h.removeClient(client); removed {
			h.logger.Warn("removed unresponsive client during broadcast",
				zap.String("client_id", client.id),
				zap.String("room", client.room))
		}
	}
}

// roomSnapshot returns a copy of a room's member set so fan-out never
// iterates the live map while joins and leaves mutate it.
func (h *Hub) roomSnapshot(room string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.Keys(h.rooms[room])
}

// deliver queues a payload on one client's send channel without blocking.
// Returns false when the client is gone or its buffer is full.
func (h *Hub) deliver(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("recovered from send on closed channel", zap.Any("panic", r))
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if !h.rooms[client.room][client] || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// RoomSize reports how many clients are currently registered under a room.
func (h *Hub) RoomSize(room string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[room])
}

// closeAllClients empties the registry and closes every member connection
// during shutdown. Removing the members closes their send channels, which is
// what lets the write pumps drain and exit.
func (h *Hub) closeAllClients() {
	h.mutex.Lock()
	var clients []*Client
	for _, members := range h.rooms {
		clients = append(clients, lo.Keys(members)...)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		h.removeClient(client)
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.logger.Warn("error closing client connection",
				zap.String("client_id", client.id), zap.Error(err))
		}
	}

	h.logger.Info("closed all client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the event loop, closes every connection, and waits for the
// pump goroutines to finish or the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("shutting down hub")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
