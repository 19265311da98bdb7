package gateway

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Transport writes frames to one physical connection. WriteEvent is only
// called from the client's write loop; Close may be called from anywhere.
type Transport interface {
	WriteEvent(ctx context.Context, ev Event) error
	Close() error
}

// Client is one authenticated connection. A user may hold several.
type Client struct {
	ID     string
	UserID uint64
	Handle string

	transport Transport
	send      chan Event
	done      chan struct{}
	dropped   atomic.Uint64

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

func NewClient(userID uint64, handle string, t Transport, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ID:        uuid.NewString(),
		UserID:    userID,
		Handle:    handle,
		transport: t,
		send:      make(chan Event, buffer),
		done:      make(chan struct{}),
		rooms:     make(map[string]struct{}),
	}
}

// Enqueue never blocks. When the queue is full the oldest pending event is dropped.
func (c *Client) Enqueue(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	for {
		select {
		case c.send <- ev:
			return true
		default:
		}
		select {
		case <-c.send:
			c.dropped.Add(1)
		default:
		}
	}
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Client) InRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

func (c *Client) addRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

func (c *Client) removeRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// markClosed flips the client to closed and returns the rooms it was in.
// The second result is false if it was already closed.
func (c *Client) markClosed() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	c.closed = true
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[string]struct{})
	close(c.done)
	return rooms, true
}
