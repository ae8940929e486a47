package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rfsilva/zapmux/internal/database"
	"github.com/rfsilva/zapmux/internal/logutil"
	"github.com/rfsilva/zapmux/internal/session"
)

type sendMessageRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// SendMessage delivers one outbound message through the tenant's connected
// session and records it in the audit log.
func SendMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "Missing tenant ID")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.Recipient == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "recipient and text are required")
		return
	}

	if err := Ctrl.Send(r.Context(), tenantID, req.Recipient, req.Text); err != nil {
		switch {
		case errors.Is(err, session.ErrNoSession):
			writeError(w, http.StatusNotFound, "No session for tenant")
		case errors.Is(err, session.ErrNotConnected):
			writeError(w, http.StatusConflict, "Session not connected")
		default:
			log.Printf("[messages] Send for %s failed: %v", logutil.SanitizeForLog(tenantID), err)
			writeError(w, http.StatusBadGateway, "Send failed: "+err.Error())
		}
		return
	}

	msg := &database.OutboundMessage{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Recipient: req.Recipient,
		Body:      req.Text,
		CreatedAt: time.Now(),
	}
	if err := database.RecordOutboundMessage(msg); err != nil {
		// The message already left; a failed audit write is not a send failure.
		log.Printf("[messages] Audit record for %s failed: %v", logutil.SanitizeForLog(tenantID), err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sent": true,
		"id":   msg.ID,
	})
}

// ListMessages returns the tenant's recent outbound messages, newest first.
func ListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "Missing tenant ID")
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := database.ListOutboundMessages(tenantID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
	})
}
