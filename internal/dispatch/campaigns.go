package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/bulkwave/messaging-backend/internal/model"
	"github.com/bulkwave/messaging-backend/internal/render"
)

// CreateParams carries everything needed to create a campaign.
type CreateParams struct {
	AccountID   int
	TemplateID  int
	ListID      int
	Name        string
	Bindings    map[string]string
	MediaKind   string
	MediaRef    string
	ScheduledAt *string // RFC3339; nil means dispatch on demand
}

// CreateCampaign stores a new campaign as pending, or scheduled when a
// send time is given. Scheduled campaigns are picked up by the worker's
// due-campaign poller.
func (s *Dispatcher) CreateCampaign(p CreateParams) (*model.Campaign, error) {
	c := &model.Campaign{
		AccountID:  p.AccountID,
		TemplateID: p.TemplateID,
		ListID:     p.ListID,
		Name:       p.Name,
		Bindings:   p.Bindings,
		MediaKind:  p.MediaKind,
		MediaRef:   p.MediaRef,
		Status:     model.CampaignPending,
	}

	if p.ScheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *p.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduled_at: %w", err)
		}
		c.ScheduledAt = &t
		c.Status = model.CampaignScheduled
	}

	if err := s.Campaigns.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *Dispatcher) ListCampaigns(page, pageSize int, accountID int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.Campaigns.ListCampaigns(offset, pageSize, accountID, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// CampaignDetails is a campaign plus its delivery stats by status.
type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

// GetCampaignDetails returns a campaign with report counts grouped by
// delivery status.
func (s *Dispatcher) GetCampaignDetails(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Reports.StatsByCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// RenderPreview renders the campaign's template for one contact, optionally
// with a body override, without sending anything.
func (s *Dispatcher) RenderPreview(campaignID, contactID int, overrideBody *string) (string, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return "", err
	}

	tpl, err := s.Templates.GetByID(campaign.TemplateID)
	if err != nil {
		return "", err
	}
	if tpl == nil {
		return "", fmt.Errorf("template not found")
	}

	contact, err := s.Contacts.GetByID(contactID)
	if err != nil {
		return "", err
	}
	if contact == nil {
		return "", fmt.Errorf("contact not found")
	}

	if overrideBody != nil && strings.TrimSpace(*overrideBody) != "" {
		body := *overrideBody
		tpl = &model.Template{Header: tpl.Header, Body: body, Footer: tpl.Footer, Buttons: tpl.Buttons}
	}

	vars := render.Bind(campaign.Bindings, contact)
	return render.Template(tpl, vars).Flatten(), nil
}
