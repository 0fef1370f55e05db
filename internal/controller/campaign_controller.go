// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bulkwave/messaging-backend/internal/dispatch"
	appErrors "github.com/bulkwave/messaging-backend/internal/errors"
	"github.com/bulkwave/messaging-backend/internal/model"
	"github.com/bulkwave/messaging-backend/internal/queue"
)

type CampaignController struct {
	Dispatcher *dispatch.Dispatcher
	Queue      queue.Queue
	Log        zerolog.Logger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountID   int               `json:"account_id"`
		TemplateID  int               `json:"template_id"`
		ListID      int               `json:"list_id"`
		Name        string            `json:"name"`
		Bindings    map[string]string `json:"bindings"`
		MediaKind   string            `json:"media_kind"`
		MediaRef    string            `json:"media_ref"`
		ScheduledAt *string           `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.Dispatcher.CreateCampaign(dispatch.CreateParams{
		AccountID:   body.AccountID,
		TemplateID:  body.TemplateID,
		ListID:      body.ListID,
		Name:        body.Name,
		Bindings:    body.Bindings,
		MediaKind:   body.MediaKind,
		MediaRef:    body.MediaRef,
		ScheduledAt: body.ScheduledAt,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	accountID, _ := strconv.Atoi(r.URL.Query().Get("account_id"))
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	campaigns, pagination, err := c.Dispatcher.ListCampaigns(page, pageSize, accountID, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	details, err := c.Dispatcher.GetCampaignDetails(id)
	if err != nil {
		writeCampaignError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

// SendCampaign publishes a dispatch job for immediate campaigns. The
// campaign itself runs on a worker; this endpoint only validates and
// enqueues.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	details, err := c.Dispatcher.GetCampaignDetails(id)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	if details.Status == model.CampaignSent {
		http.Error(w, "campaign was already sent", http.StatusConflict)
		return
	}

	if err := c.Queue.Publish(queue.TopicDispatch, queue.DispatchJob{CampaignID: id}); err != nil {
		c.Log.Error().Err(err).Int("campaign_id", id).Msg("failed to enqueue dispatch job")
		http.Error(w, "failed to enqueue campaign", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id": id,
		"status":      "queued",
	})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		ContactID    int     `json:"contact_id"`
		OverrideBody *string `json:"override_body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rendered, err := c.Dispatcher.RenderPreview(campaignID, body.ContactID, body.OverrideBody)
	if err != nil {
		writeCampaignError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rendered_message": rendered,
		"contact_id":       body.ContactID,
	})
}

// ListReports returns the delivery reports of one campaign in send order.
func (c *CampaignController) ListReports(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	reports, err := c.Dispatcher.Reports.ListByCampaign(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": reports})
}

func writeCampaignError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	if errors.As(err, &notFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
