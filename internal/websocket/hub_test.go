package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/recipebox/internal/logging"
)

func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
		return Message{}
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(logging.Discard())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("ClientCount = %d, want 2", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c1)
	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("ClientCount = %d, want 0", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(logging.Discard())
	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)

	hub.Broadcast(NewMessage(EntityRecipe, "created", "r-42", map[string]any{"title": "Soup"}))

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != "recipe_created" {
			t.Errorf("Type = %q, want recipe_created", got.Type)
		}
		if got.ID != "r-42" {
			t.Errorf("ID = %q, want r-42", got.ID)
		}
		if got.Extra["title"] != "Soup" {
			t.Errorf("Extra = %v", got.Extra)
		}
	}
}

func TestLateClientGetsLastAuthMessage(t *testing.T) {
	hub := NewHub(logging.Discard())
	hub.Broadcast(AuthMessage("u1", "chef"))
	hub.Broadcast(NewMessage(EntityRecipe, "deleted", "r1", nil))

	c := mockClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	got := receive(t, c)
	if got.Type != "auth_signed_in" || got.ID != "u1" {
		t.Errorf("initial message = %+v, want auth_signed_in for u1", got)
	}
	select {
	case <-c.send:
		t.Error("recipe message replayed to late client")
	default:
	}
}

func TestAuthMessage(t *testing.T) {
	out := AuthMessage("", "")
	if out.Type != "auth_signed_out" || out.ID != "" {
		t.Errorf("signed out = %+v", out)
	}
	in := AuthMessage("u1", "chef")
	if in.Type != "auth_signed_in" || in.Extra["username"] != "chef" {
		t.Errorf("signed in = %+v", in)
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(logging.Discard())
	c := mockClient(hub)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", "", nil))
	}
	hub.Broadcast(NewMessage("test", "dropped", "", nil))

	count := 0
	for len(c.send) > 0 {
		<-c.send
		count++
	}
	if count != sendBufferSize {
		t.Errorf("buffered = %d, want %d", count, sendBufferSize)
	}
	hub.Unregister(c)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(logging.Discard())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(AuthMessage("u1", ""))
			for len(c.send) > 0 {
				<-c.send
			}
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}
}

func TestHandleWebSocket(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(HandleWebSocket(hub, logging.Discard()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast(AuthMessage("", ""))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "auth_signed_out" {
		t.Errorf("Type = %q, want auth_signed_out", got.Type)
	}
}
