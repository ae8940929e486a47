// Package session implements the session lifecycle core: the registry of
// per-tenant sessions, the controller that bootstraps and tears them down,
// and the state machine reconciling wire connection events into an
// observable status.
package session

import (
	"errors"
	"time"

	"github.com/rfsilva/zapmux/internal/wire"
)

var (
	// ErrNoSession is returned by operations that require an existing session.
	ErrNoSession = errors.New("no session for tenant")
	// ErrNotConnected is returned when a send is attempted before the
	// session reaches Connected.
	ErrNotConnected = errors.New("session not connected")
)

// Status is the observable lifecycle state of one session.
type Status int

const (
	StatusInitializing Status = iota
	StatusAwaitingPairing
	StatusConnected
	StatusDisconnected
	// StatusTerminated is transient: a terminated session is removed from
	// the registry in the same step that marks it, so the value is never
	// observable through a lookup.
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAwaitingPairing:
		return "awaiting_pairing"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is one tenant's live connection record. Fields are mutated only by
// the Controller; readers go through Controller.Snapshot.
type Session struct {
	TenantID string
	Client   wire.Client

	Status Status
	// PairingArtifact is non-empty only while Status is AwaitingPairing.
	PairingArtifact      string
	LastDisconnectReason wire.DisconnectReason
	CreatedAt            time.Time
}

// Snapshot is a point-in-time copy of a session's observable state, safe to
// use outside the controller's lock.
type Snapshot struct {
	TenantID             string                `json:"tenant_id"`
	Status               string                `json:"status"`
	Connected            bool                  `json:"connected"`
	PairingArtifact      string                `json:"pairing,omitempty"`
	LastDisconnectReason wire.DisconnectReason `json:"last_disconnect_reason,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		TenantID:             s.TenantID,
		Status:               s.Status.String(),
		Connected:            s.Status == StatusConnected,
		PairingArtifact:      s.PairingArtifact,
		LastDisconnectReason: s.LastDisconnectReason,
		CreatedAt:            s.CreatedAt,
	}
}
