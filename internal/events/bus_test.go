package events

import (
	"sync"
	"testing"

	"github.com/dukerupert/recipebox/internal/logging"
	"github.com/dukerupert/recipebox/internal/model"
)

func TestPublishDeliversSynchronously(t *testing.T) {
	bus := NewBus(logging.Discard())

	var got []string
	bus.Subscribe(func(c AuthStateChange) { got = append(got, "first:"+c.User.ID) })
	bus.Subscribe(func(c AuthStateChange) { got = append(got, "second:"+c.User.ID) })

	bus.Publish(AuthStateChange{User: &model.User{ID: "u1"}})

	// Delivery completes before Publish returns, in registration order.
	if len(got) != 2 || got[0] != "first:u1" || got[1] != "second:u1" {
		t.Errorf("got %v, want [first:u1 second:u1]", got)
	}
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	bus := NewBus(logging.Discard())
	bus.Publish(AuthStateChange{User: &model.User{ID: "early"}})

	calls := 0
	bus.Subscribe(func(AuthStateChange) { calls++ })

	if calls != 0 {
		t.Errorf("late subscriber received %d replayed events, want 0", calls)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(logging.Discard())

	calls := 0
	unsub := bus.Subscribe(func(AuthStateChange) { calls++ })
	if bus.SubscriberCount() != 1 {
		t.Fatalf("subscribers = %d, want 1", bus.SubscriberCount())
	}

	unsub()
	unsub() // second call is a no-op

	bus.Publish(AuthStateChange{})
	if calls != 0 {
		t.Errorf("calls = %d after unsubscribe, want 0", calls)
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("subscribers = %d, want 0", bus.SubscriberCount())
	}
}

func TestHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus(logging.Discard())

	var unsub func()
	calls := 0
	unsub = bus.Subscribe(func(AuthStateChange) {
		calls++
		unsub()
	})

	bus.Publish(AuthStateChange{})
	bus.Publish(AuthStateChange{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSignOutPayload(t *testing.T) {
	c := AuthStateChange{}
	if c.SignedIn() {
		t.Error("empty change should not be signed in")
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus(logging.Discard())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(func(AuthStateChange) {})
			bus.Publish(AuthStateChange{})
			unsub()
		}()
	}
	wg.Wait()

	if got := bus.SubscriberCount(); got != 0 {
		t.Errorf("subscribers = %d after concurrent test, want 0", got)
	}
}
