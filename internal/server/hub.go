// Package server coordinates client registration, event dispatch, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/chat"
)

// Hub owns the WebSocket client set and the single goroutine that drives the
// chat engine. One inbound event is fully handled (mutation plus all fanout)
// before the next is dequeued, so the engine's registry and store never see
// interleaved access. Concurrency exists only at the boundary: read pumps
// enqueue events, write pumps drain send buffers, and image disk writes run
// as detached tasks whose completions re-enter the loop.
type Hub struct {
	engine     *chat.Engine
	clients    map[*Client]bool
	events     chan inboundEvent
	register   chan *Client
	unregister chan *Client
	uploads    chan uploadResult
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub around the given engine. The engine's stores are
// constructed once and live as long as the hub; there is no other copy of
// chat state anywhere in the process.
func NewHub(engine *chat.Engine) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		engine:     engine,
		clients:    make(map[*Client]bool),
		events:     make(chan inboundEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		uploads:    make(chan uploadResult),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's event loop. It should be called in its own goroutine
// and runs until the hub is shut down.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Warn().Msg("received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.events:
			h.dispatch(ev)

		case res := <-h.uploads:
			h.finishUpload(res)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	connectedClients.Inc()
	log.Info().Str("conn", client.id).Str("addr", client.addr).Int("clients", clientCount).Msg("client registered")

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

// removeClient drops the client and applies the disconnect event: the
// registry entry is released and, if the session had a bound name, the
// departure is broadcast to the remaining clients.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	close(client.send)

	connectedClients.Dec()
	log.Info().Str("conn", client.id).Int("clients", clientCount).Msg("client unregistered")

	h.emit(nil, h.engine.Disconnect(client.session))
}

// dispatch routes one inbound event through the engine. Every rejection is
// silent on the wire: the reason lands in the log and the rejection counter,
// and no client, the sender included, learns anything happened.
func (h *Hub) dispatch(ev inboundEvent) {
	// Clients pick the event string, so anything outside the routing table
	// shares one label instead of minting a series per name.
	label := ev.name
	if !chat.KnownEvent(label) {
		label = "unknown"
	}
	eventsTotal.WithLabelValues(label).Inc()

	if ev.name == chat.EvImageUpload {
		h.startUpload(ev)
		return
	}

	outs, err := h.engine.HandleEvent(ev.client.session, ev.name, ev.data)
	if err != nil {
		eventsRejected.WithLabelValues(label).Inc()
		log.Debug().Str("event", ev.name).Str("conn", ev.client.id).Err(err).Msg("event dropped")
		return
	}
	h.emit(ev.client, outs)
}

// startUpload validates and decodes the payload on the loop, then runs the
// disk write detached. The store is not touched until the completion comes
// back through the uploads channel, so overlapping uploads may append in
// completion order rather than start order.
func (h *Hub) startUpload(ev inboundEvent) {
	job, err := h.engine.PrepareUpload(ev.client.session, ev.data)
	if err != nil {
		eventsRejected.WithLabelValues(ev.name).Inc()
		uploadsTotal.WithLabelValues("rejected").Inc()
		log.Debug().Str("conn", ev.client.id).Err(err).Msg("image upload rejected")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		url, err := job.Write()
		select {
		case h.uploads <- uploadResult{author: job.Author, url: url, err: err}:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) finishUpload(res uploadResult) {
	if res.err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		log.Error().Str("user", res.author).Err(res.err).Msg("image upload write failed")
		return
	}
	uploadsTotal.WithLabelValues("ok").Inc()
	h.emit(nil, h.engine.FinishUpload(res.author, res.url))
}

// emit delivers the engine's emissions. sender scopes the fanout; it may be
// nil for emissions with no originating connection (disconnects, upload
// completions), in which case sender-only emissions are dropped and peer
// emissions reach everyone.
func (h *Hub) emit(sender *Client, outs []chat.Outbound) {
	for _, out := range outs {
		frame, err := json.Marshal(outboundFrame{Event: out.Event, Data: out.Data})
		if err != nil {
			log.Error().Str("event", out.Event).Err(err).Msg("marshal outbound frame")
			continue
		}

		switch out.Scope {
		case chat.ScopeSender:
			if sender != nil {
				h.deliver([]*Client{sender}, nil, frame)
			}
		case chat.ScopeAll:
			h.deliver(h.getClientSnapshot(), nil, frame)
		case chat.ScopePeers:
			h.deliver(h.getClientSnapshot(), sender, frame)
		}
	}
}

// deliver enqueues the frame to each target and cleans up clients whose send
// buffers are full or closed.
func (h *Hub) deliver(clients []*Client, skip *Client, frame []byte) {
	var failed []*Client
	for _, client := range clients {
		if client == skip {
			continue
		}
		if h.safeSend(client, frame) {
			framesSent.Inc()
		} else {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		log.Warn().Str("conn", client.id).Msg("client removed due to full send buffer")
		h.removeClient(client)
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// The send channel might be closed concurrently, hence the recover above.
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// getClientSnapshot returns a point-in-time copy of the client set.
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients force-closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Info().Msg("shutting down all client connections")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Warn().Str("conn", client.id).Err(err).Msg("error closing client connection")
			}
		}
	}

	log.Info().Int("clients", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines and in-flight upload writes to finish, or for the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
