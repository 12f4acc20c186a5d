// Package server coordinates client registration, room subscriptions and
// connection cleanup for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/manahiliqbal/chat-room/internal/store"
	"github.com/sirupsen/logrus"
)

// Hub owns the lifecycle of every live connection. Registration and
// unregistration are serialized through its Run loop; room membership lives
// in the Registry and fan-out in the Broadcaster.
type Hub struct {
	cfg         Config
	log         logrus.FieldLogger
	origins     *originPolicy
	upgrader    websocket.Upgrader
	clients     map[string]*Client
	register    chan *Client
	unregister  chan *Client
	mutex       sync.RWMutex
	registry    *Registry
	broadcaster *Broadcaster
	dispatcher  *Dispatcher
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewHub creates a Hub backed by st. The returned Hub does nothing until Run
// is started.
func NewHub(cfg Config, st store.Store, log logrus.FieldLogger) *Hub {
	cfg = cfg.sanitize()
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:        cfg,
		log:        log.WithField("component", "hub"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		registry:   NewRegistry(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.origins = newOriginPolicy(cfg.AllowedOrigins, h.log)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.checkOrigin,
	}
	h.broadcaster = NewBroadcaster(h.registry, h, log)
	h.dispatcher = NewDispatcher(st, h.registry, h.broadcaster, log)
	return h
}

// Registry returns the hub's room registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Broadcaster returns the hub's broadcaster.
func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Register hands a freshly upgraded client to the Run loop. If the hub has
// stopped the client is disconnected immediately.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.markDisconnected()
		client.closeConnection()
	}
}

// Unregister disconnects client. It is safe to call more than once and after
// the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It should be called in its own goroutine and returns once
// Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	h.clients[client.id] = client
	client.state.Store(int32(StateConnected))
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if frame, err := encodeFrame(EventConnected, ConnectedPayload{Status: "connected"}); err == nil {
		client.enqueue(frame)
	}
	client.log.WithField("clients", clientCount).Info("Client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump(h.ctx)
	}()
}

// removeClient drops every subscription of client exactly once.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		client.markDisconnected()
		return
	}

	rooms := h.registry.UnsubscribeAll(client.id)
	client.markDisconnected()
	client.log.WithFields(logrus.Fields{
		"clients":    clientCount,
		"username":   client.Username(),
		"rooms_left": rooms,
	}).Info("Client unregistered")
}

// deliver implements deliverer for the Broadcaster.
func (h *Hub) deliver(connID string, frame []byte) bool {
	h.mutex.RLock()
	client, ok := h.clients[connID]
	h.mutex.RUnlock()
	if !ok {
		return false
	}
	return client.enqueue(frame)
}

// shutdownClients closes every active connection; their pumps then unregister.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.closeConnection()
	}

	h.log.WithField("clients", len(clients)).Info("Closed client connections")
}

// Shutdown stops the Run loop, closes every connection and waits for the
// client goroutines, or until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	deadline := time.After(timeout)

	select {
	case <-h.done:
	case <-deadline:
		h.log.Warn("Hub shutdown timeout reached before the run loop stopped")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-deadline:
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
