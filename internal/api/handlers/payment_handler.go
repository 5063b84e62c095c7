package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"

	"github.com/saved-ai/engine/internal/services"
)

// PaymentHandler receives the payment provider's callback. It is not
// behind JWT; the provider authenticates with a shared token instead.
type PaymentHandler struct {
	assistant *services.Assistant
	token     string
}

func NewPaymentHandler(assistant *services.Assistant, token string) *PaymentHandler {
	return &PaymentHandler{assistant: assistant, token: token}
}

type paymentRequest struct {
	ExternalID int64 `json:"external_id"`
	Days       int   `json:"days"`
}

func (h *PaymentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Payment-Token")
	if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		http.Error(w, "invalid payment token", http.StatusUnauthorized)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := h.assistant.Handle(r.Context(), services.Event{
		Kind:       services.EventPayment,
		ExternalID: req.ExternalID,
		Days:       req.Days,
	})
	if err != nil {
		log.Printf("payment for user %d: %v", req.ExternalID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}
