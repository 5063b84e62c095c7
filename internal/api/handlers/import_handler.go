package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	middleware "github.com/saved-ai/engine/internal/api/middlewares"
	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/services"
)

// ImportHandler stages an uploaded chat export in object storage and
// hands it to the assistant as an export-file event.
type ImportHandler struct {
	assistant *services.Assistant
	storage   core.ObjectClient
}

func NewImportHandler(assistant *services.Assistant, storage core.ObjectClient) *ImportHandler {
	return &ImportHandler{assistant: assistant, storage: storage}
}

func (h *ImportHandler) UploadExport(w http.ResponseWriter, r *http.Request) {
	externalID, ok := middleware.ExternalIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	r.ParseMultipartForm(52 << 20)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}

	// Strip path components before the key touches storage.
	cleanFilename := filepath.Base(header.Filename)
	key := fmt.Sprintf("imports/%d/%s/%s", externalID, uuid.NewString(), cleanFilename)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if _, err := h.storage.UploadFile(ctx, key, data, "application/json"); err != nil {
		log.Printf("stage export for user %d: %v", externalID, err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	reply, err := h.assistant.Handle(ctx, services.Event{
		Kind:       services.EventExportFile,
		ExternalID: externalID,
		ObjectKey:  key,
	})
	if err != nil {
		log.Printf("ingest export for user %d: %v", externalID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}
