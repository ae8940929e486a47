package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rfsilva/zapmux/internal/hub"
	"github.com/rfsilva/zapmux/internal/session"
)

// Ctrl and EventHub are wired by main before the router starts serving.
var (
	Ctrl     *session.Controller
	EventHub *hub.Hub
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
