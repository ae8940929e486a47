// Package hub fans session status events out to websocket observers, keyed
// by tenant id. It is the push-channel implementation of the session
// notification sink: browsers watching a pairing screen subscribe here and
// receive the QR artifact and connect/disconnect transitions live.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rfsilva/zapmux/internal/logutil"
	"github.com/rfsilva/zapmux/internal/session"
)

const (
	// subscriberBuffer is the per-subscriber event backlog. A subscriber
	// that falls further behind is disconnected rather than allowed to
	// stall the state machine.
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

type subscriber struct {
	ch chan []byte
}

// Hub implements session.Sink. Notify never blocks.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func New() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Notify delivers one event to every subscriber of the tenant. Slow
// subscribers are dropped; marshal errors cannot happen for session events
// but are logged defensively anyway.
func (h *Hub) Notify(tenantID string, ev session.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[hub] marshal event for %s: %v", logutil.SanitizeForLog(tenantID), err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[tenantID] {
		select {
		case sub.ch <- data:
		default:
			// Backlog full, disconnect the laggard.
			h.removeLocked(tenantID, sub)
			log.Printf("[hub] dropping slow subscriber for %s", logutil.SanitizeForLog(tenantID))
		}
	}
}

// Subscribers reports how many observers a tenant currently has.
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[tenantID])
}

func (h *Hub) add(tenantID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[*subscriber]struct{})
	}
	h.subs[tenantID][sub] = struct{}{}
}

func (h *Hub) remove(tenantID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(tenantID, sub)
}

// removeLocked deletes the subscriber and closes its channel, ending the
// writer goroutine. Caller holds h.mu.
func (h *Hub) removeLocked(tenantID string, sub *subscriber) {
	set := h.subs[tenantID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, tenantID)
	}
	close(sub.ch)
}

// Serve pumps events for one accepted websocket until the client goes away
// or the context ends. It blocks; call it from the HTTP handler goroutine.
func (h *Hub) Serve(ctx context.Context, tenantID string, conn *websocket.Conn) {
	sub := &subscriber{ch: make(chan []byte, subscriberBuffer)}
	h.add(tenantID, sub)
	defer h.remove(tenantID, sub)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for data := range sub.ch {
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}()

	// Inbound frames are ignored; reading only detects the close.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	h.remove(tenantID, sub)
	<-writeDone
}
