package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	middleware "github.com/saved-ai/engine/internal/api/middlewares"
	"github.com/saved-ai/engine/internal/services"
)

// EventHandler is the main entry point: the messaging transport posts
// one event per user interaction and relays the reply.
type EventHandler struct {
	assistant *services.Assistant
}

func NewEventHandler(assistant *services.Assistant) *EventHandler {
	return &EventHandler{assistant: assistant}
}

func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	externalID, ok := middleware.ExternalIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var ev services.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// The token decides who is acting, never the payload.
	ev.ExternalID = externalID

	// Payments come in through the payment callback, not here.
	if ev.Kind == services.EventPayment {
		http.Error(w, "payment events are not accepted here", http.StatusForbidden)
		return
	}

	reply, err := h.assistant.Handle(r.Context(), ev)
	if err != nil {
		log.Printf("handle event for user %d: %v", externalID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}
