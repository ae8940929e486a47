package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rfsilva/zapmux/internal/session"
)

// startHub serves the hub behind a test HTTP server and returns a dialable
// websocket URL for the given tenant.
func startHub(t *testing.T, h *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant")
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		h.Serve(r.Context(), tenantID, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func waitSubscribers(t *testing.T, h *Hub, tenantID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Subscribers(tenantID) == n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("tenant %s has %d subscribers, want %d", tenantID, h.Subscribers(tenantID), n)
}

func TestHub_DeliversEventsToTenantSubscribers(t *testing.T) {
	h := New()
	url := startHub(t, h)

	conn := dial(t, url+"/?tenant=alice")
	waitSubscribers(t, h, "alice", 1)

	h.Notify("alice", session.Event{Type: session.EventConnected, TenantID: "alice"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var ev session.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != session.EventConnected || ev.TenantID != "alice" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHub_IsolatesTenants(t *testing.T) {
	h := New()
	url := startHub(t, h)

	aliceConn := dial(t, url+"/?tenant=alice")
	dial(t, url+"/?tenant=bob")
	waitSubscribers(t, h, "alice", 1)
	waitSubscribers(t, h, "bob", 1)

	h.Notify("bob", session.Event{Type: session.EventDisconnected, TenantID: "bob"})
	h.Notify("alice", session.Event{Type: session.EventConnected, TenantID: "alice"})

	// Alice's first frame must be her own event, not bob's.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := aliceConn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev session.Event
	json.Unmarshal(data, &ev)
	if ev.TenantID != "alice" {
		t.Errorf("alice received %+v", ev)
	}
}

func TestHub_NotifyWithoutSubscribersIsNoOp(t *testing.T) {
	h := New()
	done := make(chan struct{})
	go func() {
		h.Notify("ghost", session.Event{Type: session.EventConnected})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked with no subscribers")
	}
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := New()

	// A subscriber nobody drains: its buffer fills, then it gets dropped.
	sub := &subscriber{ch: make(chan []byte, subscriberBuffer)}
	h.add("alice", sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+1; i++ {
			h.Notify("alice", session.Event{Type: session.EventConnected, TenantID: "alice"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow subscriber")
	}
	if n := h.Subscribers("alice"); n != 0 {
		t.Errorf("slow subscriber not dropped: %d remaining", n)
	}
}

func TestHub_SubscriberGoneOnClose(t *testing.T) {
	h := New()
	url := startHub(t, h)

	conn := dial(t, url+"/?tenant=alice")
	waitSubscribers(t, h, "alice", 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitSubscribers(t, h, "alice", 0)
}
