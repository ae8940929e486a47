package session

import (
	"time"

	"github.com/rfsilva/zapmux/internal/wire"
)

// EventType classifies a status notification.
type EventType string

const (
	EventPairingReady EventType = "pairing_ready"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
)

// Event is one status change pushed to observers of a tenant.
type Event struct {
	Type      EventType `json:"type"`
	TenantID  string    `json:"tenant_id"`
	Pairing   string    `json:"pairing,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives status change notifications. Implementations must not block:
// a slow or failing observer must never stall the state machine.
type Sink interface {
	Notify(tenantID string, ev Event)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) Notify(string, Event) {}

// MultiSink fans a notification out to several sinks.
type MultiSink []Sink

func (m MultiSink) Notify(tenantID string, ev Event) {
	for _, s := range m {
		s.Notify(tenantID, ev)
	}
}

func pairingEvent(tenantID, artifact string) Event {
	return Event{Type: EventPairingReady, TenantID: tenantID, Pairing: artifact, Timestamp: time.Now()}
}

func connectedEvent(tenantID string) Event {
	return Event{Type: EventConnected, TenantID: tenantID, Timestamp: time.Now()}
}

func disconnectedEvent(tenantID string, reason wire.DisconnectReason) Event {
	return Event{Type: EventDisconnected, TenantID: tenantID, Reason: reason.String(), Timestamp: time.Now()}
}
