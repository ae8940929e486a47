// Package wire is the boundary to the messaging protocol engine. The session
// core treats a Client as a black box: given stored credentials it attaches a
// remote session, emits a pairing token while unauthenticated, emits
// credential updates to persist, and reports connection state changes with a
// machine-readable close reason.
package wire

import (
	"context"
	"time"
)

// DisconnectReason classifies why a connection closed. Codes mirror the
// protocol's close status codes.
type DisconnectReason int

const (
	ReasonNone               DisconnectReason = 0
	ReasonLoggedOut          DisconnectReason = 401
	ReasonTimedOut           DisconnectReason = 408
	ReasonConnectionLost     DisconnectReason = 428
	ReasonConnectionReplaced DisconnectReason = 440
	ReasonBadSession         DisconnectReason = 500
	ReasonUnavailable        DisconnectReason = 503
	ReasonRestartRequired    DisconnectReason = 515
)

// IsLoggedOut reports whether the close reason invalidates the stored
// credentials. This is the only reason the session core treats as permanent;
// everything else is recoverable by reconnecting with the same credentials.
func (r DisconnectReason) IsLoggedOut() bool {
	return r == ReasonLoggedOut
}

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonTimedOut:
		return "timed_out"
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonConnectionReplaced:
		return "connection_replaced"
	case ReasonBadSession:
		return "bad_session"
	case ReasonUnavailable:
		return "unavailable"
	case ReasonRestartRequired:
		return "restart_required"
	default:
		return "unknown"
	}
}

// ConnectionUpdate is one connection state change event. Fields are optional
// and not mutually exclusive: a single update may carry a pairing token, an
// open signal, or a close signal with a reason.
type ConnectionUpdate struct {
	PairingToken string
	Open         bool
	Closed       bool
	Reason       DisconnectReason
}

// Handler receives asynchronous events from a Client. Events for one client
// are delivered sequentially in emission order.
type Handler interface {
	// HandleConnectionUpdate drives the session state machine.
	HandleConnectionUpdate(update ConnectionUpdate)
	// HandleCredentialUpdate carries a fresh credential blob to persist.
	HandleCredentialUpdate(blob []byte)
}

// Client is one tenant's protocol engine. A Client belongs to exactly one
// session for its entire lifetime; reconnection builds a new Client.
type Client interface {
	// Connect attaches the remote session. The handler must be set first.
	Connect(ctx context.Context) error
	// Send delivers a text message to a remote address. Fails when the
	// session is not established.
	Send(ctx context.Context, recipient, text string) error
	// Logout revokes the pairing server-side before closing.
	Logout(ctx context.Context) error
	// Close tears down the connection without revoking the pairing.
	Close() error
	// SetHandler registers the event receiver. Must be called before Connect.
	SetHandler(h Handler)
}

// Config carries protocol-level tuning passed through to the engine.
// Opaque constants as far as the session core is concerned.
type Config struct {
	BridgeURL         string
	ConnectTimeout    time.Duration
	QueryTimeout      time.Duration
	KeepAliveInterval time.Duration
}

// Factory builds the Client for a tenant from its stored credential blob
// (nil when the tenant has never paired). The session controller never
// constructs concrete clients itself.
type Factory func(tenantID string, creds []byte) Client
