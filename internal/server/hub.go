// Package server coordinates client registration, room fan-out, and
// connection cleanup for the relaychat WebSocket system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/broadcast"
	"github.com/Tyrowin/relaychat/internal/protocol"
)

const globalFanout = "global"

// Hub owns the client registry and the rooms. Each room has its own
// fan-out instance so broadcasts in different rooms do not wait on each
// other; server announcements go through a separate global instance.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]struct{}
	fanouts map[string]*broadcast.Fanout
	global  *broadcast.Fanout

	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	cfg     *Config
	console broadcast.Console
	log     *zap.SugaredLogger
}

// NewHub creates a hub. Call Run before registering clients.
func NewHub(cfg *Config, console broadcast.Console, log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]struct{}),
		fanouts:    make(map[string]*broadcast.Fanout),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		cfg:        cfg,
		console:    console,
		log:        log,
	}
	h.global = h.newFanout(globalFanout)
	return h
}

func (h *Hub) newFanout(name string) *broadcast.Fanout {
	return broadcast.New(name, h.console, h.log, broadcast.WithDeliveryLog(h.cfg.LogDeliveries))
}

// Register hands a client to the hub, which starts its pumps. It returns
// false once the hub is shutting down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.add(client)

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
			if h.remove(client) {
				client.closeSend()
				client.log.Infow("hub", "status", "unregistered", "clients", h.ClientCount())
			}
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mutex.Lock()
	h.clients[c] = true
	members, ok := h.rooms[c.room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[c.room] = members
		h.fanouts[c.room] = h.newFanout(c.room)
	}
	members[c] = struct{}{}
	total, inRoom := len(h.clients), len(members)
	h.mutex.Unlock()

	c.log.Infow("hub", "status", "registered", "clients", total, "room_clients", inRoom)
}

// remove drops c from the registry and its room, reporting whether it was
// registered.
func (h *Hub) remove(c *Client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
			delete(h.fanouts, c.room)
		}
	}
	return true
}

// BroadcastRoom delivers f to every client in sender's room except sender.
func (h *Hub) BroadcastRoom(sender *Client, f protocol.Frame) broadcast.Report {
	h.mutex.RLock()
	fan := h.fanouts[sender.room]
	members := h.rooms[sender.room]
	recipients := make([]broadcast.Recipient, 0, len(members))
	for c := range members {
		if c != sender {
			recipients = append(recipients, c)
		}
	}
	h.mutex.RUnlock()

	if fan == nil {
		return broadcast.Report{}
	}
	report := fan.Broadcast(f, recipients)
	h.removeFailedClients(report.Failed)
	return report
}

// BroadcastGlobal delivers f to every connected client.
func (h *Hub) BroadcastGlobal(f protocol.Frame) broadcast.Report {
	report := h.global.Broadcast(f, h.snapshot())
	h.removeFailedClients(report.Failed)
	return report
}

func (h *Hub) snapshot() []broadcast.Recipient {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	recipients := make([]broadcast.Recipient, 0, len(h.clients))
	for c := range h.clients {
		recipients = append(recipients, c)
	}
	return recipients
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomCounts returns the number of clients per room.
func (h *Hub) RoomCounts() map[string]int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	counts := make(map[string]int, len(h.rooms))
	for room, members := range h.rooms {
		counts[room] = len(members)
	}
	return counts
}

// removeFailedClients drops clients that could not take a frame; their
// write pumps then close the connection.
func (h *Hub) removeFailedClients(failed []broadcast.Recipient) {
	for _, r := range failed {
		c, ok := r.(*Client)
		if !ok || !h.remove(c) {
			continue
		}
		c.closeSend()
		c.log.Warnw("hub", "status", "removed after failed delivery")
	}
}

// shutdownClients closes every client. The send channels are closed as
// well so write pumps exit without waiting for the next ping.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]struct{})
	h.fanouts = make(map[string]*broadcast.Fanout)
	h.mutex.Unlock()

	for _, client := range clients {
		client.closeSend()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				client.log.Warnw("hub", "error", "close connection", "cause", err)
			}
		}
	}

	h.log.Infow("hub", "status", "closed connections", "clients", len(clients))
}

// Shutdown stops the hub and waits for all client goroutines to finish, or
// until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Infow("hub", "status", "shutting down")
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Infow("hub", "status", "shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warnw("hub", "status", "shutdown timed out")
		return context.DeadlineExceeded
	}
}
