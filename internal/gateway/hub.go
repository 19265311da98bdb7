package gateway

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"gocampus/internal/common"
	"gocampus/internal/config"
)

// ConnectionListener hears about every connection that comes and goes.
type ConnectionListener interface {
	ClientConnected(userID uint64)
	ClientDisconnected(userID uint64)
}

type room struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	dead    bool
}

type roomShard struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// Hub owns the room registry and the user registry. It is the only writer of
// "who is listening where".
type Hub struct {
	shards []*roomShard

	usersMu sync.RWMutex
	users   map[uint64]map[*Client]struct{}

	listenersMu sync.RWMutex
	listeners   []ConnectionListener

	sendBuffer   int
	writeTimeout time.Duration
	logger       *slog.Logger
}

func NewHub(cfg *config.Config, logger *slog.Logger) *Hub {
	n := cfg.Gateway.RoomShards
	if n <= 0 {
		n = 32
	}
	shards := make([]*roomShard, n)
	for i := range shards {
		shards[i] = &roomShard{rooms: make(map[string]*room)}
	}
	writeTimeout := cfg.Gateway.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Hub{
		shards:       shards,
		users:        make(map[uint64]map[*Client]struct{}),
		sendBuffer:   cfg.Gateway.SendBuffer,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "gateway"),
	}
}

func (h *Hub) AddListener(l ConnectionListener) {
	h.listenersMu.Lock()
	h.listeners = append(h.listeners, l)
	h.listenersMu.Unlock()
}

func (h *Hub) snapshotListeners() []ConnectionListener {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	return append([]ConnectionListener(nil), h.listeners...)
}

// NewClient builds a client sized by the gateway config. It is not live until Register.
func (h *Hub) NewClient(userID uint64, handle string, t Transport) *Client {
	return NewClient(userID, handle, t, h.sendBuffer)
}

// Register makes the client reachable by user fan-out and starts its write loop.
func (h *Hub) Register(c *Client) {
	h.usersMu.Lock()
	set, ok := h.users[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}
	h.usersMu.Unlock()

	go h.writeLoop(c)

	h.logger.Debug("client registered", "client_id", c.ID, "user_id", c.UserID)
	for _, l := range h.snapshotListeners() {
		l.ClientConnected(c.UserID)
	}
}

// Unregister removes the client from every room and the user registry before returning.
// Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	rooms, first := c.markClosed()
	if !first {
		return
	}

	for _, name := range rooms {
		h.removeFromRoom(c, name)
	}

	h.usersMu.Lock()
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.usersMu.Unlock()

	if err := c.transport.Close(); err != nil {
		h.logger.Debug("transport close", "client_id", c.ID, "error", err)
	}

	h.logger.Debug("client unregistered", "client_id", c.ID, "user_id", c.UserID, "dropped", c.Dropped())
	for _, l := range h.snapshotListeners() {
		l.ClientDisconnected(c.UserID)
	}
}

func (h *Hub) shardFor(name string) *roomShard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(name))
	return h.shards[f.Sum32()%uint32(len(h.shards))]
}

// Join is idempotent. It fails only if the client is already closed.
func (h *Hub) Join(c *Client, name string) error {
	shard := h.shardFor(name)
	for {
		shard.mu.Lock()
		r, ok := shard.rooms[name]
		if !ok {
			r = &room{clients: make(map[*Client]struct{})}
			shard.rooms[name] = r
		}
		shard.mu.Unlock()

		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		r.clients[c] = struct{}{}
		r.mu.Unlock()
		break
	}

	// a concurrent Unregister may have snapshotted rooms before we got here
	if !c.addRoom(name) {
		h.removeFromRoom(c, name)
		return common.Invalid("connection is closed")
	}
	return nil
}

// Leave is idempotent.
func (h *Hub) Leave(c *Client, name string) {
	c.removeRoom(name)
	h.removeFromRoom(c, name)
}

func (h *Hub) removeFromRoom(c *Client, name string) {
	shard := h.shardFor(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	r, ok := shard.rooms[name]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.clients, c)
	if len(r.clients) == 0 {
		r.dead = true
		delete(shard.rooms, name)
	}
	r.mu.Unlock()
}

func (h *Hub) lookup(name string) *room {
	shard := h.shardFor(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.rooms[name]
}

// Broadcast enqueues ev for every listener in the room and returns how many accepted it.
// It never blocks on a slow consumer. An empty room is a no-op.
func (h *Hub) Broadcast(name string, ev Event) int {
	r := h.lookup(name)
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for c := range r.clients {
		if c.Enqueue(ev) {
			n++
		}
	}
	return n
}

// SendToUser enqueues ev on every live connection of userID.
func (h *Hub) SendToUser(userID uint64, ev Event) int {
	h.usersMu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		clients = append(clients, c)
	}
	h.usersMu.RUnlock()

	n := 0
	for _, c := range clients {
		if c.Enqueue(ev) {
			n++
		}
	}
	return n
}

// CloseRoom detaches every listener from the room.
func (h *Hub) CloseRoom(name string) int {
	shard := h.shardFor(name)
	shard.mu.Lock()
	r, ok := shard.rooms[name]
	if ok {
		delete(shard.rooms, name)
	}
	shard.mu.Unlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dead = true
	n := len(r.clients)
	for c := range r.clients {
		c.removeRoom(name)
	}
	r.clients = nil
	return n
}

func (h *Hub) RoomSize(name string) int {
	r := h.lookup(name)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (h *Hub) ConnectionCount(userID uint64) int {
	h.usersMu.RLock()
	defer h.usersMu.RUnlock()
	return len(h.users[userID])
}

// Shutdown closes every live connection.
func (h *Hub) Shutdown() {
	h.usersMu.RLock()
	var all []*Client
	for _, set := range h.users {
		for c := range set {
			all = append(all, c)
		}
	}
	h.usersMu.RUnlock()

	for _, c := range all {
		h.Unregister(c)
	}
	h.logger.Info("gateway shutdown complete", "connections", len(all))
}

func (h *Hub) writeLoop(c *Client) {
	for {
		select {
		case ev := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
			err := c.transport.WriteEvent(ctx, ev)
			cancel()
			if err != nil {
				h.logger.Info("write failed, closing connection",
					"client_id", c.ID,
					"user_id", c.UserID,
					"event", ev.Name,
					"error", err)
				h.Unregister(c)
				return
			}
		case <-c.done:
			return
		}
	}
}
