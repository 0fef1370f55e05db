// internal/handler/import_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bulkwave/messaging-backend/internal/model"
	"github.com/bulkwave/messaging-backend/internal/repository"
)

// ImportHandler loads contacts into a list. Each imported contact also
// leaves an import staging row; the aggregator folds those into the
// conversation summaries on its next sweep, which is where cross-list
// name dedup happens.
type ImportHandler struct {
	Contacts repository.ContactRepositoryInterface
	Staging  repository.StagingRepositoryInterface
	Log      zerolog.Logger
}

type importedContact struct {
	DisplayName string            `json:"display_name"`
	Address     string            `json:"address"`
	Attributes  map[string]string `json:"attributes"`
}

func (h *ImportHandler) ImportContacts(w http.ResponseWriter, r *http.Request) {
	listID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid list id", http.StatusBadRequest)
		return
	}

	list, err := h.Contacts.GetList(listID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		http.Error(w, "contact list not found", http.StatusNotFound)
		return
	}

	var body struct {
		Contacts []importedContact `json:"contacts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(body.Contacts) == 0 {
		http.Error(w, "contacts are required", http.StatusBadRequest)
		return
	}

	// Batch id ties the log lines of one import run together.
	batchID := uuid.NewString()

	imported := 0
	for _, in := range body.Contacts {
		if in.Address == "" {
			continue
		}
		contact := &model.Contact{
			AccountID:   list.AccountID,
			ListID:      listID,
			DisplayName: in.DisplayName,
			Address:     in.Address,
			Attributes:  in.Attributes,
			Subscribed:  true,
		}
		if err := h.Contacts.CreateContact(contact); err != nil {
			h.Log.Warn().Err(err).Str("batch_id", batchID).Str("address", in.Address).Msg("skipping contact")
			continue
		}
		if err := h.Staging.InsertImport(&model.ImportEntry{
			AccountID:   list.AccountID,
			ListID:      listID,
			Address:     in.Address,
			DisplayName: in.DisplayName,
		}); err != nil {
			h.Log.Warn().Err(err).Str("batch_id", batchID).Str("address", in.Address).Msg("failed to stage import entry")
		}
		imported++
	}

	if err := h.Contacts.AddParticipants(listID, imported); err != nil {
		h.Log.Error().Err(err).Int("list_id", listID).Msg("failed to update participant count")
	}

	h.Log.Info().Str("batch_id", batchID).Int("list_id", listID).Int("imported", imported).Msg("contact import complete")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"batch_id": batchID,
		"list_id":  listID,
		"imported": imported,
	})
}
