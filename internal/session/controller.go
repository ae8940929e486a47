package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rfsilva/zapmux/internal/credentials"
	"github.com/rfsilva/zapmux/internal/logutil"
	"github.com/rfsilva/zapmux/internal/pairing"
	"github.com/rfsilva/zapmux/internal/wire"
)

// Controller owns session bootstrap, event reconciliation and teardown.
// It is the single writer of the registry and of session state.
type Controller struct {
	registry *Registry
	store    credentials.Store
	factory  wire.Factory
	sink     Sink

	reconnectDelay time.Duration

	mu       sync.Mutex
	inflight map[string]chan struct{} // tenants with a bootstrap in progress
	timers   map[string]*time.Timer   // pending reconnects, keyed by tenant
	closed   bool
}

// NewController wires the lifecycle core together. The sink may be nil.
func NewController(reg *Registry, store credentials.Store, factory wire.Factory, sink Sink, reconnectDelay time.Duration) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	return &Controller{
		registry:       reg,
		store:          store,
		factory:        factory,
		sink:           sink,
		reconnectDelay: reconnectDelay,
		inflight:       make(map[string]chan struct{}),
		timers:         make(map[string]*time.Timer),
	}
}

// EnsureSession returns the tenant's session, bootstrapping one if absent.
// Idempotent: concurrent calls for the same unknown tenant collapse into a
// single bootstrap and construct exactly one wire client. Bootstrap failures
// (credential load, client construction, connect) surface synchronously and
// are not retried here.
func (c *Controller) EnsureSession(ctx context.Context, tenantID string) (*Session, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, fmt.Errorf("ensure session %s: controller shut down", tenantID)
		}
		if sess, ok := c.registry.Get(tenantID); ok {
			c.mu.Unlock()
			return sess, nil
		}
		if wait, ok := c.inflight[tenantID]; ok {
			// Another caller is mid-bootstrap; wait for it and re-check.
			c.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			c.mu.Lock()
			sess, ok := c.registry.Get(tenantID)
			c.mu.Unlock()
			if ok {
				return sess, nil
			}
			// The winner failed; take over the bootstrap.
			continue
		}
		done := make(chan struct{})
		c.inflight[tenantID] = done
		c.mu.Unlock()

		sess, err := c.bootstrap(ctx, tenantID)

		c.mu.Lock()
		delete(c.inflight, tenantID)
		close(done)
		c.mu.Unlock()

		return sess, err
	}
}

// bootstrap performs the full session creation sequence. The caller holds
// the in-flight marker for tenantID; no lock is held across the blocking
// credential load and connect.
func (c *Controller) bootstrap(ctx context.Context, tenantID string) (*Session, error) {
	creds, err := c.store.Load(tenantID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap %s: load credentials: %w", tenantID, err)
	}

	client := c.factory(tenantID, creds)
	sess := &Session{
		TenantID:  tenantID,
		Client:    client,
		Status:    StatusInitializing,
		CreatedAt: time.Now(),
	}
	client.SetHandler(&sessionEvents{c: c, sess: sess})

	// Registered before Connect so concurrent callers observe the session
	// instead of triggering a duplicate bootstrap, and so the first events
	// find it in the registry.
	c.mu.Lock()
	c.registry.Put(tenantID, sess)
	c.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		c.mu.Lock()
		c.registry.Remove(tenantID)
		c.mu.Unlock()
		client.Close()
		return nil, fmt.Errorf("bootstrap %s: connect: %w", tenantID, err)
	}

	log.Printf("session %s bootstrapped (credentials: %v)", logutil.SanitizeForLog(tenantID), creds != nil)
	return sess, nil
}

// sessionEvents adapts wire events for one session onto the controller.
// The wire layer delivers events sequentially, preserving emission order.
type sessionEvents struct {
	c    *Controller
	sess *Session
}

func (e *sessionEvents) HandleConnectionUpdate(u wire.ConnectionUpdate) {
	e.c.applyUpdate(e.sess, u)
}

func (e *sessionEvents) HandleCredentialUpdate(blob []byte) {
	// Persistence is best-effort relative to the live connection: a failed
	// save is logged and never alters session state.
	if err := e.c.store.Save(e.sess.TenantID, blob); err != nil {
		log.Printf("session %s: credential save failed: %v", logutil.SanitizeForLog(e.sess.TenantID), err)
	}
}

// applyUpdate runs one connection update through the transition function and
// executes the resulting actions. Events addressed to a session that is no
// longer registered (or has been replaced by a newer record) are dropped, so
// a stale "open" can never resurrect a removed session.
func (c *Controller) applyUpdate(sess *Session, u wire.ConnectionUpdate) {
	tenantID := sess.TenantID

	c.mu.Lock()
	current, ok := c.registry.Get(tenantID)
	if !ok || current != sess {
		c.mu.Unlock()
		log.Printf("session %s: dropping stale event %+v", logutil.SanitizeForLog(tenantID), u)
		return
	}

	var notifications []Event
	terminated := false

	for _, a := range Transition(sess.Status, u) {
		switch a.Step {
		case StepSetPairing:
			artifact, err := pairing.DataURI(a.Token)
			if err != nil {
				log.Printf("session %s: pairing render failed: %v", logutil.SanitizeForLog(tenantID), err)
				continue
			}
			sess.Status = StatusAwaitingPairing
			sess.PairingArtifact = artifact
			notifications = append(notifications, pairingEvent(tenantID, artifact))

		case StepMarkConnected:
			sess.Status = StatusConnected
			sess.PairingArtifact = ""
			sess.LastDisconnectReason = wire.ReasonNone
			notifications = append(notifications, connectedEvent(tenantID))
			log.Printf("session %s connected", logutil.SanitizeForLog(tenantID))

		case StepMarkDisconnected:
			sess.Status = StatusDisconnected
			sess.PairingArtifact = ""
			sess.LastDisconnectReason = a.Reason
			notifications = append(notifications, disconnectedEvent(tenantID, a.Reason))
			c.scheduleReconnectLocked(tenantID)
			log.Printf("session %s disconnected (%s), reconnecting in %s", logutil.SanitizeForLog(tenantID), a.Reason, c.reconnectDelay)

		case StepTerminate:
			// Terminated is never stored: removal happens here, in the
			// same step.
			sess.Status = StatusTerminated
			sess.PairingArtifact = ""
			sess.LastDisconnectReason = a.Reason
			c.registry.Remove(tenantID)
			c.cancelReconnectLocked(tenantID)
			notifications = append(notifications, disconnectedEvent(tenantID, a.Reason))
			terminated = true
			log.Printf("session %s logged out, purging", logutil.SanitizeForLog(tenantID))
		}
	}
	c.mu.Unlock()

	if terminated {
		if err := c.store.Delete(tenantID); err != nil {
			log.Printf("session %s: credential purge failed: %v", logutil.SanitizeForLog(tenantID), err)
		}
		if err := sess.Client.Close(); err != nil {
			log.Printf("session %s: client close: %v", logutil.SanitizeForLog(tenantID), err)
		}
	}

	for _, ev := range notifications {
		c.sink.Notify(tenantID, ev)
	}
}

// scheduleReconnectLocked arms the delayed fresh bootstrap for a tenant.
// At most one timer exists per tenant. Caller holds c.mu.
func (c *Controller) scheduleReconnectLocked(tenantID string) {
	if c.closed {
		return
	}
	if _, armed := c.timers[tenantID]; armed {
		return
	}
	c.timers[tenantID] = time.AfterFunc(c.reconnectDelay, func() {
		c.reconnect(tenantID)
	})
}

// cancelReconnectLocked disarms a pending reconnect. Caller holds c.mu.
// A timer that already fired is harmless: the reconnect re-checks the
// registry and EnsureSession is idempotent.
func (c *Controller) cancelReconnectLocked(tenantID string) {
	if t, ok := c.timers[tenantID]; ok {
		t.Stop()
		delete(c.timers, tenantID)
	}
}

// reconnect discards the disconnected session record and runs a fresh
// bootstrap with the persisted credentials. This is recreation, not resume:
// a brand-new Session and wire client.
func (c *Controller) reconnect(tenantID string) {
	c.mu.Lock()
	delete(c.timers, tenantID)
	if c.closed {
		c.mu.Unlock()
		return
	}
	old, ok := c.registry.Get(tenantID)
	if ok && old.Status == StatusDisconnected {
		c.registry.Remove(tenantID)
	} else if ok {
		// The session recovered or was replaced while the timer was
		// pending; nothing to do.
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if ok {
		old.Client.Close()
	}

	if _, err := c.EnsureSession(context.Background(), tenantID); err != nil {
		// Left for the resync job or the next caller; retrying here would
		// bypass the bootstrap failure contract.
		log.Printf("session %s: scheduled reconnect failed: %v", logutil.SanitizeForLog(tenantID), err)
	}
}

// Snapshot returns the observable state of a tenant's session.
func (c *Controller) Snapshot(tenantID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.registry.Get(tenantID)
	if !ok {
		return Snapshot{}, false
	}
	return sess.snapshot(), true
}

// List returns snapshots of every live session.
func (c *Controller) List() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessions := c.registry.List()
	out := make([]Snapshot, len(sessions))
	for i, s := range sessions {
		out[i] = s.snapshot()
	}
	return out
}

// Send delivers a message through the tenant's connected session. The error
// is for the caller; session state is never affected by a send failure.
func (c *Controller) Send(ctx context.Context, tenantID, recipient, text string) error {
	c.mu.Lock()
	sess, ok := c.registry.Get(tenantID)
	if !ok {
		c.mu.Unlock()
		return ErrNoSession
	}
	if sess.Status != StatusConnected {
		c.mu.Unlock()
		return fmt.Errorf("%w (status %s)", ErrNotConnected, sess.Status)
	}
	client := sess.Client
	c.mu.Unlock()

	return client.Send(ctx, recipient, text)
}

// Logout revokes the tenant's pairing and purges the session and its
// credentials. The tenant's next EnsureSession starts a brand-new pairing
// handshake. Works even when no session is live (purges credentials only).
func (c *Controller) Logout(ctx context.Context, tenantID string) error {
	c.mu.Lock()
	sess, ok := c.registry.Get(tenantID)
	c.mu.Unlock()

	if !ok {
		if err := c.store.Delete(tenantID); err != nil {
			return fmt.Errorf("logout %s: %w", tenantID, err)
		}
		return nil
	}

	// Best-effort server-side revocation; the local purge below does not
	// depend on it.
	if err := sess.Client.Logout(ctx); err != nil {
		log.Printf("session %s: remote logout failed: %v", logutil.SanitizeForLog(tenantID), err)
	}

	// Drive the terminate path deterministically. The bridge's own
	// logged-out close frame, if it still arrives, finds the session gone
	// and is dropped as stale.
	c.applyUpdate(sess, wire.ConnectionUpdate{Closed: true, Reason: wire.ReasonLoggedOut})
	return nil
}

// Shutdown stops reconnect timers and closes every live client. Best-effort:
// timers that already fired become no-ops via the closed flag.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	sessions := c.registry.List()
	c.mu.Unlock()

	for _, s := range sessions {
		if err := s.Client.Close(); err != nil {
			log.Printf("session %s: close on shutdown: %v", logutil.SanitizeForLog(s.TenantID), err)
		}
	}
}
