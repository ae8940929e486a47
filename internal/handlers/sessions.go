package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rfsilva/zapmux/internal/logutil"
	"github.com/rfsilva/zapmux/internal/session"
)

// ListSessions returns a snapshot of every live session.
func ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": Ctrl.List(),
	})
}

// GetPairing boots (or reuses) the tenant's session and reports what the
// caller should do next: nothing if already connected, or scan the returned
// pairing QR code. Until the pairing token arrives the caller polls this
// endpoint or watches the event stream.
func GetPairing(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "Missing tenant ID")
		return
	}

	if _, err := Ctrl.EnsureSession(r.Context(), tenantID); err != nil {
		log.Printf("[sessions] Bootstrap for %s failed: %v", logutil.SanitizeForLog(tenantID), err)
		writeError(w, http.StatusBadGateway, "Failed to start session: "+err.Error())
		return
	}

	snap, ok := Ctrl.Snapshot(tenantID)
	if !ok {
		// Terminated between ensure and snapshot. Treat as not yet paired.
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tenant_id": tenantID,
			"connected": false,
			"status":    session.StatusDisconnected.String(),
		})
		return
	}

	if snap.Connected {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tenant_id": tenantID,
			"connected": true,
		})
		return
	}

	if snap.PairingArtifact != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tenant_id": tenantID,
			"connected": false,
			"status":    snap.Status,
			"qr":        snap.PairingArtifact,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"connected": false,
		"status":    snap.Status,
	})
}

// GetSessionStatus reports the tenant's current state without side effects.
// A tenant with no live session is simply not connected.
func GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "Missing tenant ID")
		return
	}

	snap, ok := Ctrl.Snapshot(tenantID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tenant_id": tenantID,
			"connected": false,
			"status":    session.StatusDisconnected.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// LogoutSession revokes the tenant's pairing and wipes stored credentials.
func LogoutSession(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "Missing tenant ID")
		return
	}

	if err := Ctrl.Logout(r.Context(), tenantID); err != nil {
		log.Printf("[sessions] Logout for %s failed: %v", logutil.SanitizeForLog(tenantID), err)
		writeError(w, http.StatusInternalServerError, "Failed to log out: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
