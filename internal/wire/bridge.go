package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rfsilva/zapmux/internal/logutil"
)

// frame is the JSON envelope exchanged with the protocol bridge. One frame
// type per message; unused fields are omitted on the wire.
type frame struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"`
	Credentials []byte `json:"credentials,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Text        string `json:"text,omitempty"`
	Error       string `json:"error,omitempty"`

	// connection update fields (bridge → gateway)
	QR     string `json:"qr,omitempty"`
	Open   bool   `json:"open,omitempty"`
	Closed bool   `json:"closed,omitempty"`
	Reason int    `json:"reason,omitempty"`

	// attach tuning (gateway → bridge)
	ConnectTimeoutMs    int `json:"connect_timeout_ms,omitempty"`
	QueryTimeoutMs      int `json:"query_timeout_ms,omitempty"`
	KeepAliveIntervalMs int `json:"keepalive_interval_ms,omitempty"`
}

const bridgeReadLimit = 4 * 1024 * 1024

// BridgeClient attaches one tenant's remote session through the protocol
// bridge over a websocket. It implements Client.
type BridgeClient struct {
	tenantID string
	creds    []byte
	cfg      Config

	mu      sync.Mutex
	conn    *websocket.Conn
	handler Handler
	pending map[string]chan string // send ack waiters, keyed by message id
	closed  bool

	stopKeepAlive context.CancelFunc
}

// NewBridgeClient builds a client bound to one tenant's credential blob.
// creds is nil for a tenant that has never paired.
func NewBridgeClient(tenantID string, creds []byte, cfg Config) *BridgeClient {
	return &BridgeClient{
		tenantID: tenantID,
		creds:    creds,
		cfg:      cfg,
		pending:  make(map[string]chan string),
	}
}

// NewFactory returns a Factory producing bridge clients with fixed protocol
// tuning.
func NewFactory(cfg Config) Factory {
	return func(tenantID string, creds []byte) Client {
		return NewBridgeClient(tenantID, creds, cfg)
	}
}

func (c *BridgeClient) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect dials the bridge, sends the attach frame and starts the read and
// keepalive loops. The handler must already be registered.
func (c *BridgeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.handler == nil {
		c.mu.Unlock()
		return fmt.Errorf("connect %s: no handler registered", c.tenantID)
	}
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("connect %s: already connected", c.tenantID)
	}
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge at %s: %w", c.cfg.BridgeURL, err)
	}
	conn.SetReadLimit(bridgeReadLimit)

	attach := frame{
		Type:                "attach",
		TenantID:            c.tenantID,
		Credentials:         c.creds,
		ConnectTimeoutMs:    int(c.cfg.ConnectTimeout / time.Millisecond),
		QueryTimeoutMs:      int(c.cfg.QueryTimeout / time.Millisecond),
		KeepAliveIntervalMs: int(c.cfg.KeepAliveInterval / time.Millisecond),
	}
	if err := writeFrame(dialCtx, conn, attach); err != nil {
		conn.CloseNow()
		return fmt.Errorf("attach %s: %w", c.tenantID, err)
	}

	kaCtx, stopKA := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.stopKeepAlive = stopKA
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.keepAliveLoop(kaCtx, conn)

	return nil
}

// readLoop dispatches bridge frames to the handler. Frames arrive and are
// delivered strictly in order; the session core relies on that.
func (c *BridgeClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			handler := c.handler
			c.mu.Unlock()
			if !closed && handler != nil {
				// Bridge link dropped without a close frame; surface it
				// as a lost connection so the session layer can recover.
				handler.HandleConnectionUpdate(ConnectionUpdate{
					Closed: true,
					Reason: ReasonConnectionLost,
				})
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("[wire] %s: discarding malformed frame: %v", logutil.SanitizeForLog(c.tenantID), err)
			continue
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()

		switch f.Type {
		case "connection":
			handler.HandleConnectionUpdate(ConnectionUpdate{
				PairingToken: f.QR,
				Open:         f.Open,
				Closed:       f.Closed,
				Reason:       DisconnectReason(f.Reason),
			})
		case "creds":
			handler.HandleCredentialUpdate(f.Credentials)
		case "ack":
			c.mu.Lock()
			if ch, ok := c.pending[f.ID]; ok {
				delete(c.pending, f.ID)
				ch <- f.Error
			}
			c.mu.Unlock()
		case "message":
			// Inbound messages are a hook point only; the gateway does no
			// content processing.
		default:
			log.Printf("[wire] %s: unknown frame type %q", logutil.SanitizeForLog(c.tenantID), f.Type)
		}
	}
}

func (c *BridgeClient) keepAliveLoop(ctx context.Context, conn *websocket.Conn) {
	if c.cfg.KeepAliveInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Send delivers one text message and waits for the bridge ack.
func (c *BridgeClient) Send(ctx context.Context, recipient, text string) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closed {
		c.mu.Unlock()
		return fmt.Errorf("send: not connected")
	}
	id := uuid.NewString()
	ack := make(chan string, 1)
	c.pending[id] = ack
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	err := writeFrame(sendCtx, conn, frame{
		Type:      "send",
		ID:        id,
		Recipient: recipient,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	select {
	case <-sendCtx.Done():
		return fmt.Errorf("send: %w", sendCtx.Err())
	case errMsg := <-ack:
		if errMsg != "" {
			return fmt.Errorf("send rejected: %s", errMsg)
		}
		return nil
	}
}

// Logout asks the bridge to revoke the pairing server-side, then closes.
// The resulting logged-out close frame reaches the handler before the
// connection drops.
func (c *BridgeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("logout: not connected")
	}

	logoutCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	if err := writeFrame(logoutCtx, conn, frame{Type: "logout"}); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Close tears down the bridge link without revoking the pairing.
func (c *BridgeClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	stopKA := c.stopKeepAlive
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- "connection closed"
	}
	c.mu.Unlock()

	if stopKA != nil {
		stopKA()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	return nil
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
