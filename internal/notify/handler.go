package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ContactHandler exposes the portfolio contact form endpoint.
type ContactHandler struct {
	dispatcher *Dispatcher
	log        zerolog.Logger
}

func NewContactHandler(dispatcher *Dispatcher, log zerolog.Logger) *ContactHandler {
	return &ContactHandler{dispatcher: dispatcher, log: log}
}

// Submit handles POST /api/contact.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeContactJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request body"})
		return
	}
	if req.Name == "" || req.Email == "" || req.Subject == "" || req.Message == "" {
		writeContactJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "All fields are required"})
		return
	}

	sent := h.dispatcher.SendContactForm(r.Context(), ContactFormData{
		Name:      req.Name,
		Email:     req.Email,
		Subject:   req.Subject,
		Message:   req.Message,
		Timestamp: time.Now(),
	})
	if !sent {
		h.log.Error().Str("from", req.Email).Msg("contact form delivery failed")
		writeContactJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": "Failed to send message"})
		return
	}
	writeContactJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeContactJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
