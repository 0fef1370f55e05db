// Package dispatch orchestrates the per-recipient campaign send loop:
// render, send, record a durable delivery report, continue on error.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/bulkwave/messaging-backend/internal/errors"
	"github.com/bulkwave/messaging-backend/internal/gateway"
	"github.com/bulkwave/messaging-backend/internal/metrics"
	"github.com/bulkwave/messaging-backend/internal/model"
	"github.com/bulkwave/messaging-backend/internal/quota"
	"github.com/bulkwave/messaging-backend/internal/render"
	"github.com/bulkwave/messaging-backend/internal/repository"
)

type Dispatcher struct {
	Campaigns repository.CampaignRepositoryInterface
	Contacts  repository.ContactRepositoryInterface
	Templates repository.TemplateRepositoryInterface
	Reports   repository.ReportRepositoryInterface
	Staging   repository.StagingRepositoryInterface
	Accounts  repository.AccountRepositoryInterface
	Quota     *quota.Guard
	Gateway   gateway.Sender
	Log       zerolog.Logger
}

// Result summarizes one campaign run.
type Result struct {
	CampaignID int `json:"campaign_id"`
	Attempted  int `json:"attempted"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// Dispatch runs one campaign end to end. Precondition failures (missing
// template, empty list, quota shortfall) abort before any send and leave
// the campaign status untouched for operator retry. Per-recipient failures
// are recorded as failed reports and never abort the batch.
func (s *Dispatcher) Dispatch(ctx context.Context, campaignID int) (*Result, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.CampaignSent {
		return nil, appErrors.NewCampaignAlreadySent(campaignID)
	}

	tpl, err := s.Templates.GetByID(campaign.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, appErrors.NewTemplateNotFound(campaign.TemplateID)
	}

	contacts, err := s.Contacts.ListByList(campaign.ListID)
	if err != nil {
		return nil, err
	}
	sendable := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.Subscribed {
			sendable = append(sendable, c)
		}
	}
	if len(sendable) == 0 {
		return nil, appErrors.NewEmptyContactList(campaign.ListID)
	}

	account, err := s.Accounts.GetByID(campaign.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %d not found", campaign.AccountID)
	}

	// One atomic reservation for the whole batch: either the account has
	// room for every recipient or nothing is spent.
	reserved := len(sendable)
	if err := s.Quota.Reserve(account.ID, reserved); err != nil {
		metrics.QuotaRefusals.Inc()
		return nil, err
	}

	// Claim the run before the first send. The status read above can be
	// stale under concurrent requests; the conditional pending->sending
	// flip is what guarantees exactly one send loop per campaign.
	claimed, err := s.Campaigns.ClaimDispatch(campaignID)
	if err == nil && !claimed {
		err = appErrors.NewCampaignAlreadySent(campaignID)
	}
	if err != nil {
		if relErr := s.Quota.Release(account.ID, reserved); relErr != nil {
			s.Log.Error().Err(relErr).Int("account_id", account.ID).Msg("failed to release unused quota")
		}
		return nil, err
	}

	creds := gateway.Credentials{ChannelAddress: account.ChannelAddress, Token: account.APIToken}
	kind := gateway.KindText
	if campaign.MediaRef != "" {
		kind = campaign.MediaKind
	}

	result := &Result{CampaignID: campaignID}
	for i := range sendable {
		contact := &sendable[i]
		result.Attempted++

		vars := render.Bind(campaign.Bindings, contact)
		content := render.Template(tpl, vars)

		report := &model.DeliveryReport{
			AccountID:    account.ID,
			CampaignID:   campaignID,
			Address:      contact.Address,
			RenderedText: content.Flatten(),
			MediaRef:     campaign.MediaRef,
		}

		payload, err := gateway.BuildPayload(kind, contact.Address, content, campaign.MediaRef)
		var providerID string
		if err == nil {
			providerID, err = s.Gateway.Send(ctx, creds, payload)
		}

		if err != nil {
			s.Log.Warn().Err(err).
				Int("campaign_id", campaignID).
				Str("address", contact.Address).
				Msg("send failed, continuing with next contact")
			report.Status = model.ReportFailed
			report.LastError = err.Error()
			result.Failed++
			metrics.MessagesSent.WithLabelValues("failed").Inc()
			if err := s.Reports.Create(report); err != nil {
				s.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to record failed report")
			}
			continue
		}

		report.Status = model.ReportSent
		report.ProviderMessageID = providerID
		result.Succeeded++
		metrics.MessagesSent.WithLabelValues("sent").Inc()

		// Report and outbound staging row are written right away; a crash
		// later in the loop cannot lose attempts that already went out.
		if err := s.Reports.Create(report); err != nil {
			s.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to record delivery report")
		}
		if _, err := s.Staging.InsertEvent(&model.StagedEvent{
			AccountID:         account.ID,
			Kind:              model.EventOutboundMessage,
			ProviderMessageID: providerID,
			Address:           contact.Address,
			Text:              report.RenderedText,
			EventAt:           time.Now(),
		}); err != nil {
			s.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to stage outbound message")
		}
	}

	// Failed sends do not consume quota; return the unused part once.
	if err := s.Quota.Release(account.ID, reserved-result.Succeeded); err != nil {
		s.Log.Error().Err(err).Int("account_id", account.ID).Msg("failed to release unused quota")
	}

	if _, err := s.Campaigns.MarkSent(campaignID); err != nil {
		return result, err
	}
	metrics.CampaignsDispatched.Inc()

	s.Log.Info().
		Int("campaign_id", campaignID).
		Int("attempted", result.Attempted).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("campaign dispatched")
	return result, nil
}
