package handlers

import (
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rfsilva/zapmux/internal/logutil"
)

// SessionEvents upgrades to a websocket and streams the tenant's status
// change events until the client disconnects. Subscribing does not require
// a live session; events start flowing once one exists.
func SessionEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "Missing tenant ID")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[events] Failed to accept websocket for %s: %v", logutil.SanitizeForLog(tenantID), err)
		return
	}
	defer conn.CloseNow()

	EventHub.Serve(r.Context(), tenantID, conn)
}
