// Package aggregate drains staged events and import entries and folds them
// into the per-counterparty conversation summaries. A sweep clears only the
// rows it merged successfully, so every staged row is applied at least once
// even across crashes; timestamp guards make re-application harmless.
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/bulkwave/messaging-backend/internal/metrics"
	"github.com/bulkwave/messaging-backend/internal/model"
	"github.com/bulkwave/messaging-backend/internal/repository"
)

const defaultBatchSize = 500

type Aggregator struct {
	Staging       repository.StagingRepositoryInterface
	Conversations repository.ConversationRepositoryInterface
	Reports       repository.ReportRepositoryInterface
	Accounts      repository.AccountRepositoryInterface
	BatchSize     int
	Log           zerolog.Logger
}

// SweepResult counts what one sweep drained and cleared.
type SweepResult struct {
	Events        int `json:"events"`
	Imports       int `json:"imports"`
	ClearedEvents int `json:"cleared_events"`
	ClearedRows   int `json:"cleared_imports"`
}

type convKey struct {
	AccountID int
	Address   string
}

// Sweep runs one Draining -> Merging -> Clearing pass.
func (a *Aggregator) Sweep(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	batch := a.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	events, err := a.Staging.ListPendingEvents(batch)
	if err != nil {
		return nil, err
	}
	imports, err := a.Staging.ListPendingImports(batch)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Events: len(events), Imports: len(imports)}
	if len(events) == 0 && len(imports) == 0 {
		return result, nil
	}

	channels := map[int]string{}
	channelFor := func(accountID int) (string, bool) {
		if ch, ok := channels[accountID]; ok {
			return ch, true
		}
		acct, err := a.Accounts.GetByID(accountID)
		if err != nil || acct == nil {
			a.Log.Warn().Err(err).Int("account_id", accountID).Msg("cannot resolve channel, leaving rows staged")
			return "", false
		}
		channels[accountID] = acct.ChannelAddress
		return acct.ChannelAddress, true
	}

	// Merging: per key, in event-timestamp order so the final state does
	// not depend on webhook arrival order.
	grouped := map[convKey][]model.StagedEvent{}
	for _, e := range events {
		k := convKey{AccountID: e.AccountID, Address: e.Address}
		grouped[k] = append(grouped[k], e)
	}

	var clearEvents []int64
	for key, group := range grouped {
		sort.Slice(group, func(i, j int) bool {
			if group[i].EventAt.Equal(group[j].EventAt) {
				return group[i].ID < group[j].ID
			}
			return group[i].EventAt.Before(group[j].EventAt)
		})

		// Rejections are audit-only: a group of nothing but rejections,
		// with or without an address, must not upsert a summary row.
		// Events without an address have nothing to merge either way.
		if key.Address == "" || rejectionsOnly(group) {
			for _, e := range group {
				clearEvents = append(clearEvents, e.ID)
			}
			continue
		}

		channel, ok := channelFor(key.AccountID)
		if !ok {
			continue
		}

		if !a.advanceReports(group) {
			continue // keep the group staged, retry next sweep
		}

		err := a.Conversations.Merge(key.AccountID, channel, key.Address, func(cs *model.ConversationSummary) error {
			for i := range group {
				foldEvent(cs, &group[i])
			}
			return nil
		})
		if err != nil {
			a.Log.Error().Err(err).
				Int("account_id", key.AccountID).
				Str("address", key.Address).
				Msg("merge failed, keeping staged events")
			continue
		}

		for _, e := range group {
			clearEvents = append(clearEvents, e.ID)
		}
	}

	var clearImports []int64
	importGroups := map[convKey][]model.ImportEntry{}
	for _, e := range imports {
		k := convKey{AccountID: e.AccountID, Address: e.Address}
		importGroups[k] = append(importGroups[k], e)
	}
	for key, group := range importGroups {
		channel, ok := channelFor(key.AccountID)
		if !ok {
			continue
		}
		err := a.Conversations.Merge(key.AccountID, channel, key.Address, func(cs *model.ConversationSummary) error {
			for _, entry := range group {
				cs.AddName(entry.DisplayName, entry.ListID)
			}
			return nil
		})
		if err != nil {
			a.Log.Error().Err(err).
				Int("account_id", key.AccountID).
				Str("address", key.Address).
				Msg("import merge failed, keeping staged entries")
			continue
		}
		for _, e := range group {
			clearImports = append(clearImports, e.ID)
		}
	}

	// Clearing: only rows whose merge succeeded.
	if err := a.Staging.DeleteEvents(clearEvents); err != nil {
		return result, err
	}
	if err := a.Staging.DeleteImports(clearImports); err != nil {
		return result, err
	}
	result.ClearedEvents = len(clearEvents)
	result.ClearedRows = len(clearImports)
	metrics.SweepMerged.Add(float64(len(clearEvents) + len(clearImports)))

	return result, nil
}

func rejectionsOnly(group []model.StagedEvent) bool {
	for i := range group {
		if group[i].Kind != model.EventTemplateRejected {
			return false
		}
	}
	return true
}

// advanceReports applies status-change events to delivery reports before
// the summary merge. Any failure keeps the whole group staged.
func (a *Aggregator) advanceReports(group []model.StagedEvent) bool {
	for _, e := range group {
		if e.Kind != model.EventStatusChange {
			continue
		}
		if err := a.Reports.AdvanceStatus(e.ProviderMessageID, e.Status, e.EventAt); err != nil {
			a.Log.Error().Err(err).
				Str("provider_message_id", e.ProviderMessageID).
				Msg("report status update failed")
			return false
		}
	}
	return true
}

// lastActivity is the newest of the summary's two activity timestamps; the
// preview text only moves forward past it.
func lastActivity(cs *model.ConversationSummary) time.Time {
	var t time.Time
	if cs.LastSentAt != nil {
		t = *cs.LastSentAt
	}
	if cs.LastReceivedAt != nil && cs.LastReceivedAt.After(t) {
		t = *cs.LastReceivedAt
	}
	return t
}

// foldEvent applies one staged event to the summary. Every update is
// guarded by the event timestamp, so merging T2 before T1 ends in the same
// state as merging them in order.
func foldEvent(cs *model.ConversationSummary, e *model.StagedEvent) {
	switch e.Kind {
	case model.EventOutboundMessage:
		if !e.EventAt.Before(lastActivity(cs)) {
			cs.LastMessageText = e.Text
		}
		if cs.LastSentAt == nil || e.EventAt.After(*cs.LastSentAt) {
			at := e.EventAt
			cs.LastSentAt = &at
		}
		if cs.Status == "" {
			cs.Status = model.ConversationOpen
		}

	case model.EventInboundMessage:
		if !e.EventAt.Before(lastActivity(cs)) {
			cs.LastMessageText = e.Text
		}
		if cs.LastReceivedAt == nil || e.EventAt.After(*cs.LastReceivedAt) {
			at := e.EventAt
			cs.LastReceivedAt = &at
		}
		cs.AddAgents(e.AgentIDs)
		cs.Status = model.ConversationOpen

	case model.EventStatusChange:
		// read and replied mean the counterparty engaged.
		if e.Status == model.ReportRead || e.Status == model.ReportReplied {
			if cs.LastReceivedAt == nil || e.EventAt.After(*cs.LastReceivedAt) {
				at := e.EventAt
				cs.LastReceivedAt = &at
			}
		}

	case model.EventTemplateRejected:
		// Audit-only: the report state machine forbids moving a sent
		// report to failed, so rejections mutate nothing here.
	}
}
