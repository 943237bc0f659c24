// Package server coordinates client admission, inbound event dispatch, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/Tyrowin/relay/internal/lifecycle"
	"github.com/Tyrowin/relay/internal/logx"
	"github.com/Tyrowin/relay/internal/protocol"
)

type inboundEvent struct {
	client *Client
	event  protocol.Inbound
}

// Hub owns the client goroutines and feeds every connection event, one at a
// time, into the lifecycle manager. Run is the only goroutine that touches
// the clients map.
type Hub struct {
	manager    *lifecycle.Manager
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        logx.Logger
}

// NewHub creates a Hub that drives manager. The returned Hub is ready to Run.
func NewHub(manager *lifecycle.Manager, log logx.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		manager:    manager,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// join hands a new client to the hub. It reports false once the hub is
// shutting down.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) dispatch(c *Client, in protocol.Inbound) bool {
	select {
	case h.inbound <- inboundEvent{client: c, event: in}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Run starts the hub's main event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}

			h.clients[client] = true
			h.manager.Open(client)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			delete(h.clients, client)
			h.manager.Close(client.ID())
			client.finish()

		case ev := <-h.inbound:
			if !h.clients[ev.client] {
				continue
			}
			h.manager.Dispatch(ev.client.ID(), ev.event)
		}
	}
}

// shutdownClients closes every remaining connection and stops its pumps.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections", logx.Int("clients", len(h.clients)))

	for client := range h.clients {
		delete(h.clients, client)
		client.finish()
		if err := client.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("close client connection", logx.String("conn", client.ID()), logx.Err(err))
		}
	}
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Run may never have been started.
	select {
	case <-h.done:
	case <-timer.C:
		h.log.Warn("hub shutdown timeout reached before the event loop stopped")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-timer.C:
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
