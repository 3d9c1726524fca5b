// Package progress delivers best-effort export progress notifications.
package progress

import "sync"

// Update is one progress notification.
type Update struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Outcome reports what happened to a notification. NoListener is not a failure.
type Outcome int

const (
	Delivered Outcome = iota
	NoListener
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "no_listener"
}

// Listener receives updates. It must not block for long.
type Listener func(Update)

// Channel fans updates out to at most one listener. The zero value has no listener.
type Channel struct {
	mu       sync.RWMutex
	listener Listener
}

// NewChannel returns a channel delivering to l, which may be nil.
func NewChannel(l Listener) *Channel {
	return &Channel{listener: l}
}

// Subscribe replaces the current listener. A nil listener detaches it.
func (c *Channel) Subscribe(l Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// Notify sends u to the listener, clamping Percent into [0, 100].
func (c *Channel) Notify(u Update) Outcome {
	if c == nil {
		return NoListener
	}
	c.mu.RLock()
	l := c.listener
	c.mu.RUnlock()
	if l == nil {
		return NoListener
	}
	if u.Percent < 0 {
		u.Percent = 0
	}
	if u.Percent > 100 {
		u.Percent = 100
	}
	l(u)
	return Delivered
}
