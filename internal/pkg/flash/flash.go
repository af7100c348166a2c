// internal/pkg/flash/flash.go
package flash

import (
	"fmt"
	"sync"
	"time"
)

// Kind distinguishes the visual treatment of a message.
type Kind int

const (
	None Kind = iota
	Error
	Success
)

// Message is the single transient message currently on display.
type Message struct {
	Kind Kind
	Text string
}

// DefaultTTL is how long a message stays up before it self-clears.
const DefaultTTL = 5 * time.Second

// Center holds at most one transient message at a time. Setting a new
// message replaces the previous one (last write wins) and re-arms the
// auto-clear timer.
type Center struct {
	mu       sync.Mutex
	current  Message
	timer    *time.Timer
	ttl      time.Duration
	onChange func(Message)
}

// NewCenter creates a message center with the default TTL.
func NewCenter() *Center {
	return &Center{ttl: DefaultTTL}
}

// NewCenterTTL creates a message center with a custom TTL. A TTL of zero
// disables auto-clearing.
func NewCenterTTL(ttl time.Duration) *Center {
	return &Center{ttl: ttl}
}

// Subscribe registers a callback invoked on every message change, including
// the auto-clear. Only one subscriber is supported; the display is a single
// surface.
func (c *Center) Subscribe(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Errorf sets a transient error message.
func (c *Center) Errorf(format string, args ...interface{}) {
	c.set(Message{Kind: Error, Text: fmt.Sprintf(format, args...)})
}

// Successf sets a transient success message.
func (c *Center) Successf(format string, args ...interface{}) {
	c.set(Message{Kind: Success, Text: fmt.Sprintf(format, args...)})
}

// Current returns the message on display, if any.
func (c *Center) Current() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current.Kind != None
}

// Clear removes the current message immediately.
func (c *Center) Clear() {
	c.set(Message{})
}

func (c *Center) set(m Message) {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = m
	if m.Kind != None && c.ttl > 0 {
		c.timer = time.AfterFunc(c.ttl, func() { c.expire(m) })
	}
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(m)
	}
}

// expire clears the message only if it is still the one the timer was armed
// for; a later write owns its own timer.
func (c *Center) expire(m Message) {
	c.mu.Lock()
	if c.current != m {
		c.mu.Unlock()
		return
	}
	c.current = Message{}
	c.timer = nil
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(Message{})
	}
}
