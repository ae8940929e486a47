package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rfsilva/zapmux/internal/database"
	"github.com/rfsilva/zapmux/internal/hub"
	"github.com/rfsilva/zapmux/internal/session"
	"github.com/rfsilva/zapmux/internal/wire"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates a fresh in-memory SQLite database for each test.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	database.DB = db
	if err := db.AutoMigrate(&database.Credential{}, &database.Setting{}, &database.OutboundMessage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

// fakeClient is a scriptable wire client. onConnect runs synchronously
// inside Connect with the handler already registered.
type fakeClient struct {
	mu        sync.Mutex
	handler   wire.Handler
	onConnect func(h wire.Handler)
	sendErr   error
	sent      [][2]string
	closed    bool
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if f.onConnect != nil {
		f.onConnect(h)
	}
	return nil
}

func (f *fakeClient) Send(ctx context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, [2]string{recipient, text})
	return nil
}

func (f *fakeClient) Logout(ctx context.Context) error { return nil }

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) SetHandler(h wire.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// memStore is an in-memory credential store.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: make(map[string][]byte)} }

func (m *memStore) Load(tenantID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[tenantID], nil
}

func (m *memStore) Save(tenantID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[tenantID] = blob
	return nil
}

func (m *memStore) Delete(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, tenantID)
	return nil
}

func (m *memStore) Tenants() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.blobs))
	for id := range m.blobs {
		out = append(out, id)
	}
	return out, nil
}

// setupController wires the package globals with a controller built on the
// given connect script and returns the last client constructed.
func setupController(t *testing.T, onConnect func(h wire.Handler)) *fakeClient {
	t.Helper()
	client := &fakeClient{onConnect: onConnect}
	factory := func(tenantID string, creds []byte) wire.Client { return client }
	EventHub = hub.New()
	Ctrl = session.NewController(session.NewRegistry(), newMemStore(), factory, EventHub, 50*time.Millisecond)
	t.Cleanup(func() { Ctrl.Shutdown() })
	return client
}

func connectImmediately(h wire.Handler) {
	h.HandleConnectionUpdate(wire.ConnectionUpdate{Open: true})
}

func emitPairingToken(token string) func(h wire.Handler) {
	return func(h wire.Handler) {
		h.HandleConnectionUpdate(wire.ConnectionUpdate{PairingToken: token})
	}
}

// buildRequest creates an HTTP request with chi URL params in context.
func buildRequest(t *testing.T, method, url string, body io.Reader, chiParams map[string]string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, body)

	rctx := chi.NewRouteContext()
	for k, v := range chiParams {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, w.Body.String())
	}
	return result
}
