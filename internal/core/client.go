package core

import "sync"

// DefaultClientBuffer is the number of events a connection may lag behind
// before it is considered dead and evicted.
const DefaultClientBuffer = 64

// Client is a live connection as seen by the core layer. Once joined it is
// bound to exactly one (user, room) pair for the rest of its life.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	mu     sync.Mutex
	closed bool
	userID int64
	roomID int64
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
	}
}

// Send delivers ev without blocking. It reports false when the buffer is
// full or the client is closed.
func (c *Client) Send(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// sendFinal delivers ev as the last event before close. A full buffer
// loses its oldest events to make room.
func (c *Client) sendFinal(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	for {
		select {
		case c.Events <- ev:
			return true
		default:
		}
		select {
		case <-c.Events:
		default:
		}
	}
}

// Binding returns the user and room the client joined, if any.
func (c *Client) Binding() (userID, roomID int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.roomID, c.roomID != 0
}

// Closed reports whether the core has closed the client.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) bind(userID, roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.roomID != 0 {
		return false
	}
	c.userID = userID
	c.roomID = roomID
	return true
}

func (c *Client) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = 0
	c.roomID = 0
}

// close closes the Events channel. Only the first call has an effect.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.Events)
	return true
}
