// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	appErrors "github.com/bulkwave/messaging-backend/internal/errors"
	"github.com/bulkwave/messaging-backend/internal/webhook"
)

// WebhookHandler is the provider webhook ingress. The provider delivers
// at-least-once; anything accepted or already staged answers 200 so the
// provider stops redelivering.
type WebhookHandler struct {
	Stager *webhook.Stager
	Log    zerolog.Logger
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	result, err := h.Stager.Stage(r.Context(), raw)
	if err != nil {
		var malformed *appErrors.ErrMalformedEvent
		if errors.As(err, &malformed) {
			http.Error(w, malformed.Reason, http.StatusBadRequest)
			return
		}
		h.Log.Error().Err(err).Msg("staging failed")
		http.Error(w, "staging failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
