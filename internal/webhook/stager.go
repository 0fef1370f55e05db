// Package webhook normalizes provider-pushed events into write-once staged
// records. The provider delivers at-least-once and unordered; staging is
// idempotent on (provider message id, kind, status) so redeliveries are
// absorbed here instead of leaking duplicates downstream, while distinct
// status steps of the same message all get staged.
package webhook

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	appErrors "github.com/bulkwave/messaging-backend/internal/errors"
	"github.com/bulkwave/messaging-backend/internal/metrics"
	"github.com/bulkwave/messaging-backend/internal/model"
	"github.com/bulkwave/messaging-backend/internal/notify"
	"github.com/bulkwave/messaging-backend/internal/repository"
)

// Provider event names on the wire.
const (
	eventStatus   = "message:status"
	eventReceived = "message:received"
	eventRejected = "template:rejected"
)

type Stager struct {
	Staging       repository.StagingRepositoryInterface
	Conversations repository.ConversationRepositoryInterface
	Notifier      notify.Notifier
	// UnassignedPool receives conversations no agent is assigned to yet.
	UnassignedPool []string
	Log            zerolog.Logger
}

// Result reports what Stage did with one webhook delivery.
type Result struct {
	Kind   string `json:"kind"`
	Staged bool   `json:"staged"` // false: duplicate redelivery, absorbed
}

// rawEvent is the provider's webhook envelope.
type rawEvent struct {
	Event     string `json:"event"`
	AccountID int    `json:"account_id"`
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Status    string `json:"status"`
	Template  string `json:"template"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Stage validates and stages one raw webhook payload. Malformed payloads
// are rejected with a reason and never retried internally (the provider
// redelivers). Duplicate deliveries return Staged=false without an error.
func (s *Stager) Stage(ctx context.Context, raw []byte) (*Result, error) {
	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return nil, appErrors.NewMalformedEvent("invalid JSON: " + err.Error())
	}

	staged, err := s.normalize(&ev)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Event, "rejected").Inc()
		return nil, err
	}

	inserted, err := s.Staging.InsertEvent(staged)
	if err != nil {
		return nil, err
	}
	if !inserted {
		metrics.WebhookEvents.WithLabelValues(staged.Kind, "duplicate").Inc()
		return &Result{Kind: staged.Kind, Staged: false}, nil
	}
	metrics.WebhookEvents.WithLabelValues(staged.Kind, "staged").Inc()

	// First-delivery side effect only: redeliveries must not re-notify.
	if staged.Kind == model.EventInboundMessage {
		s.notifyAgents(ctx, staged)
	}

	return &Result{Kind: staged.Kind, Staged: true}, nil
}

// normalize maps the provider envelope onto one of the staged event shapes
// and validates the minimum identifying fields.
func (s *Stager) normalize(ev *rawEvent) (*model.StagedEvent, error) {
	if ev.AccountID <= 0 {
		return nil, appErrors.NewMalformedEvent("missing account_id")
	}
	if ev.MessageID == "" {
		return nil, appErrors.NewMalformedEvent("missing message_id")
	}
	at, err := parseTimestamp(ev.Timestamp)
	if err != nil {
		return nil, appErrors.NewMalformedEvent("bad timestamp: " + ev.Timestamp)
	}

	staged := &model.StagedEvent{
		AccountID:         ev.AccountID,
		ProviderMessageID: ev.MessageID,
		EventAt:           at,
	}

	switch ev.Event {
	case eventStatus:
		if ev.Recipient == "" {
			return nil, appErrors.NewMalformedEvent("status event missing recipient")
		}
		if model.ReportStatusRank(ev.Status) == 0 {
			return nil, appErrors.NewMalformedEvent("unknown status: " + ev.Status)
		}
		staged.Kind = model.EventStatusChange
		staged.Address = ev.Recipient
		staged.Status = ev.Status

	case eventReceived:
		if ev.Sender == "" {
			return nil, appErrors.NewMalformedEvent("message event missing sender")
		}
		staged.Kind = model.EventInboundMessage
		staged.Address = ev.Sender
		staged.Text = ev.Text
		route := s.route(staged.AccountID, staged.Address)
		staged.AgentIDs = route.Agents

	case eventRejected:
		staged.Kind = model.EventTemplateRejected
		staged.Address = ev.Recipient
		staged.Text = ev.Reason

	default:
		return nil, appErrors.NewMalformedEvent("unknown event kind: " + ev.Event)
	}

	return staged, nil
}

// Route is the agent-routing decision for one inbound event: either the
// conversation's assigned agents, or the configured unassigned pool.
type Route struct {
	Agents   []string
	FromPool bool
}

// route is the decision table, evaluated once per event.
func (s *Stager) route(accountID int, address string) Route {
	summary, err := s.Conversations.GetByCounterparty(accountID, address)
	if err != nil {
		s.Log.Warn().Err(err).Int("account_id", accountID).Msg("agent lookup failed, routing to pool")
	}
	if summary != nil && len(summary.AgentIDs) > 0 {
		return Route{Agents: summary.AgentIDs}
	}
	return Route{Agents: s.UnassignedPool, FromPool: true}
}

// notifyAgents is fire-and-forget: a broken notification channel must never
// block staging.
func (s *Stager) notifyAgents(ctx context.Context, ev *model.StagedEvent) {
	if s.Notifier == nil || len(ev.AgentIDs) == 0 {
		return
	}
	n := notify.Notification{
		AgentIDs: ev.AgentIDs,
		Address:  ev.Address,
		Preview:  preview(ev.Text),
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Log.Warn().Err(err).Str("address", ev.Address).Msg("agent notification failed")
	}
}

func preview(text string) string {
	const max = 120
	if len(text) <= max {
		return text
	}
	// Back up to a rune boundary so the cut never splits a multibyte
	// character in half.
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// Some provider versions send unix seconds.
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
