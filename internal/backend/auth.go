package backend

import (
	"slices"

	"github.com/dukerupert/recipebox/internal/model"
)

type AuthEvent string

const (
	EventSignedIn  AuthEvent = "SIGNED_IN"
	EventSignedOut AuthEvent = "SIGNED_OUT"
)

// AuthListener receives the client's own auth state notifications.
type AuthListener func(event AuthEvent, sess *model.Session)

type authListener struct {
	id uint64
	fn AuthListener
}

// OnAuthStateChange registers fn and returns a function that removes it.
func (c *Client) OnAuthStateChange(fn AuthListener) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, authListener{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.listeners = slices.DeleteFunc(c.listeners, func(l authListener) bool { return l.id == id })
		c.mu.Unlock()
	}
}

// SetSession notifies listeners of the active session. A nil session
// signs the client out.
func (c *Client) SetSession(sess *model.Session) {
	c.mu.RLock()
	listeners := slices.Clone(c.listeners)
	c.mu.RUnlock()

	event := EventSignedIn
	if sess == nil {
		event = EventSignedOut
	}
	for _, l := range listeners {
		l.fn(event, sess)
	}
}
