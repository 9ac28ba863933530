// Package events carries auth-state-changed notifications inside the process.
package events

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/dukerupert/recipebox/internal/model"
)

// AuthStateChangeName is the name the notification carries on the wire when mirrored to pages.
const AuthStateChangeName = "auth-state-change"

// AuthStateChange announces a new identity. User and Session are both nil on sign-out.
type AuthStateChange struct {
	User    *model.User
	Session *model.Session
}

// SignedIn reports whether the change carries a user.
func (c AuthStateChange) SignedIn() bool {
	return c.User != nil
}

type Handler func(AuthStateChange)

// Bus delivers AuthStateChange synchronously to every current subscriber.
// Nothing is queued or replayed for late subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID uint64
	logger *slog.Logger
}

type subscriber struct {
	id uint64
	h  Handler
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers h and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscriber{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.subs = slices.DeleteFunc(b.subs, func(s subscriber) bool { return s.id == id })
			b.mu.Unlock()
		})
	}
}

// Publish calls every subscriber in registration order before returning.
// Handlers run outside the lock so they may subscribe or unsubscribe.
func (b *Bus) Publish(change AuthStateChange) {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	b.logger.Debug("publish auth state change",
		"signed_in", change.SignedIn(),
		"subscribers", len(subs),
	)

	for _, s := range subs {
		s.h(change)
	}
}

// SubscriberCount returns the number of registered handlers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

