package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rfsilva/zapmux/internal/config"
	"github.com/rfsilva/zapmux/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	var err error
	database.DB, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.DB.AutoMigrate(&database.Setting{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
}

func protected() (http.Handler, *bool) {
	called := false
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	return h, &called
}

func TestRequireAuth_ValidBearerToken(t *testing.T) {
	setupTestDB(t)
	config.Cfg.AuthDisabled = false
	if err := SetAPIToken("s3cret"); err != nil {
		t.Fatalf("SetAPIToken: %v", err)
	}

	h, called := protected()
	req := httptest.NewRequest("GET", "/sessions", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !*called {
		t.Errorf("valid token rejected: status %d, called %v", w.Code, *called)
	}
}

func TestRequireAuth_TokenViaQueryParam(t *testing.T) {
	setupTestDB(t)
	config.Cfg.AuthDisabled = false
	SetAPIToken("s3cret")

	h, called := protected()
	req := httptest.NewRequest("GET", "/sessions/alice/events?token=s3cret", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !*called {
		t.Errorf("query token rejected: status %d, called %v", w.Code, *called)
	}
}

func TestRequireAuth_RejectsBadToken(t *testing.T) {
	setupTestDB(t)
	config.Cfg.AuthDisabled = false
	SetAPIToken("s3cret")

	for _, header := range []string{"", "Bearer wrong", "Basic s3cret"} {
		h, called := protected()
		req := httptest.NewRequest("GET", "/sessions", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized || *called {
			t.Errorf("header %q: status %d, called %v; want 401", header, w.Code, *called)
		}
	}
}

func TestRequireAuth_NoProvisionedToken(t *testing.T) {
	setupTestDB(t)
	config.Cfg.AuthDisabled = false

	h, called := protected()
	req := httptest.NewRequest("GET", "/sessions", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized || *called {
		t.Errorf("unprovisioned token accepted: status %d", w.Code)
	}
}

func TestRequireAuth_Disabled(t *testing.T) {
	setupTestDB(t)
	config.Cfg.AuthDisabled = true
	defer func() { config.Cfg.AuthDisabled = false }()

	h, called := protected()
	req := httptest.NewRequest("GET", "/sessions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !*called {
		t.Errorf("auth-disabled bypass failed: status %d", w.Code)
	}
}
