package webhook_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	appErrors "github.com/bulkwave/messaging-backend/internal/errors"
	"github.com/bulkwave/messaging-backend/internal/model"
	"github.com/bulkwave/messaging-backend/internal/notify"
	"github.com/bulkwave/messaging-backend/internal/webhook"
)

// MockStagingRepo dedupes on (provider message id, kind, status) like the
// unique index would.
type MockStagingRepo struct {
	Events []model.StagedEvent
}

func (m *MockStagingRepo) InsertEvent(e *model.StagedEvent) (bool, error) {
	for _, existing := range m.Events {
		if existing.ProviderMessageID == e.ProviderMessageID &&
			existing.Kind == e.Kind && existing.Status == e.Status {
			return false, nil
		}
	}
	m.Events = append(m.Events, *e)
	return true, nil
}
func (m *MockStagingRepo) ListPendingEvents(limit int) ([]model.StagedEvent, error) {
	return m.Events, nil
}
func (m *MockStagingRepo) DeleteEvents(ids []int64) error          { return nil }
func (m *MockStagingRepo) InsertImport(e *model.ImportEntry) error { return nil }
func (m *MockStagingRepo) ListPendingImports(limit int) ([]model.ImportEntry, error) {
	return nil, nil
}
func (m *MockStagingRepo) DeleteImports(ids []int64) error { return nil }

type MockConversationRepo struct {
	Summary *model.ConversationSummary
}

func (m *MockConversationRepo) GetByID(id int) (*model.ConversationSummary, error) {
	return m.Summary, nil
}
func (m *MockConversationRepo) GetByCounterparty(accountID int, address string) (*model.ConversationSummary, error) {
	return m.Summary, nil
}
func (m *MockConversationRepo) ListByAccount(accountID, offset, limit int) ([]model.ConversationSummary, int, error) {
	return nil, 0, nil
}
func (m *MockConversationRepo) Merge(accountID int, channelAddress, address string, apply func(*model.ConversationSummary) error) error {
	return nil
}

type MockNotifier struct {
	Notifications []notify.Notification
}

func (m *MockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	m.Notifications = append(m.Notifications, n)
	return nil
}

func newStager(staging *MockStagingRepo, conversations *MockConversationRepo, notifier *MockNotifier) *webhook.Stager {
	return &webhook.Stager{
		Staging:        staging,
		Conversations:  conversations,
		Notifier:       notifier,
		UnassignedPool: []string{"pool-1", "pool-2"},
		Log:            zerolog.Nop(),
	}
}

func TestStageInboundMessage(t *testing.T) {
	staging := &MockStagingRepo{}
	notifier := &MockNotifier{}
	s := newStager(staging, &MockConversationRepo{}, notifier)

	raw := []byte(`{
		"event": "message:received",
		"account_id": 1,
		"message_id": "wamid-100",
		"sender": "254700000001",
		"text": "hello there",
		"timestamp": "2026-09-01T10:00:00Z"
	}`)

	res, err := s.Stage(context.Background(), raw)
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if !res.Staged || res.Kind != model.EventInboundMessage {
		t.Errorf("expected staged inbound message, got %+v", res)
	}

	if len(staging.Events) != 1 {
		t.Fatalf("expected 1 staged event, got %d", len(staging.Events))
	}
	ev := staging.Events[0]
	if ev.Address != "254700000001" || ev.Text != "hello there" {
		t.Errorf("unexpected staged event: %+v", ev)
	}
	want := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if !ev.EventAt.Equal(want) {
		t.Errorf("expected event_at %v, got %v", want, ev.EventAt)
	}

	// Unassigned conversation routes to the pool.
	if len(notifier.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.Notifications))
	}
	n := notifier.Notifications[0]
	if len(n.AgentIDs) != 2 || n.AgentIDs[0] != "pool-1" {
		t.Errorf("expected pool routing, got %v", n.AgentIDs)
	}
}

func TestStageDuplicateIsAbsorbed(t *testing.T) {
	staging := &MockStagingRepo{}
	notifier := &MockNotifier{}
	s := newStager(staging, &MockConversationRepo{}, notifier)

	raw := []byte(`{
		"event": "message:received",
		"account_id": 1,
		"message_id": "wamid-100",
		"sender": "254700000001",
		"text": "hello",
		"timestamp": "2026-09-01T10:00:00Z"
	}`)

	if _, err := s.Stage(context.Background(), raw); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	res, err := s.Stage(context.Background(), raw)
	if err != nil {
		t.Fatalf("redelivery returned error: %v", err)
	}
	if res.Staged {
		t.Error("redelivery was staged again")
	}

	if len(staging.Events) != 1 {
		t.Errorf("expected 1 staged event after redelivery, got %d", len(staging.Events))
	}
	// Redelivery must not re-notify.
	if len(notifier.Notifications) != 1 {
		t.Errorf("expected 1 notification after redelivery, got %d", len(notifier.Notifications))
	}
}

func TestStageRoutesToAssignedAgents(t *testing.T) {
	conversations := &MockConversationRepo{Summary: &model.ConversationSummary{
		AgentIDs: model.StringList{"agent-7"},
	}}
	notifier := &MockNotifier{}
	s := newStager(&MockStagingRepo{}, conversations, notifier)

	raw := []byte(`{
		"event": "message:received",
		"account_id": 1,
		"message_id": "wamid-200",
		"sender": "254700000001",
		"text": "follow-up",
		"timestamp": "2026-09-01T11:00:00Z"
	}`)

	if _, err := s.Stage(context.Background(), raw); err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if len(notifier.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.Notifications))
	}
	n := notifier.Notifications[0]
	if len(n.AgentIDs) != 1 || n.AgentIDs[0] != "agent-7" {
		t.Errorf("expected assigned agent routing, got %v", n.AgentIDs)
	}
}

func TestStagePreviewCutsOnRuneBoundary(t *testing.T) {
	notifier := &MockNotifier{}
	s := newStager(&MockStagingRepo{}, &MockConversationRepo{}, notifier)

	// One ASCII byte then two-byte runes, so the 120-byte mark lands in
	// the middle of a rune.
	text := "a" + strings.Repeat("é", 100)
	raw := []byte(`{
		"event": "message:received",
		"account_id": 1,
		"message_id": "wamid-400",
		"sender": "254700000001",
		"text": "` + text + `",
		"timestamp": "2026-09-01T10:00:00Z"
	}`)

	if _, err := s.Stage(context.Background(), raw); err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if len(notifier.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.Notifications))
	}
	p := notifier.Notifications[0].Preview
	if !utf8.ValidString(p) {
		t.Fatalf("preview is not valid UTF-8: %q", p)
	}
	if len(p) > 120 {
		t.Errorf("preview is %d bytes, want at most 120", len(p))
	}
	if want := text[:119]; p != want {
		t.Errorf("expected cut at previous rune boundary, got %d bytes", len(p))
	}
}

func TestStageStatusEvent(t *testing.T) {
	staging := &MockStagingRepo{}
	notifier := &MockNotifier{}
	s := newStager(staging, &MockConversationRepo{}, notifier)

	raw := []byte(`{
		"event": "message:status",
		"account_id": 1,
		"message_id": "wamid-300",
		"recipient": "254700000001",
		"status": "delivered",
		"timestamp": "1788600000"
	}`)

	res, err := s.Stage(context.Background(), raw)
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if res.Kind != model.EventStatusChange {
		t.Errorf("expected status kind, got %q", res.Kind)
	}
	// Unix-seconds timestamps are accepted too.
	if staging.Events[0].EventAt.Unix() != 1788600000 {
		t.Errorf("expected unix timestamp parsed, got %v", staging.Events[0].EventAt)
	}
	// Status events never notify agents.
	if len(notifier.Notifications) != 0 {
		t.Errorf("status event notified agents: %d", len(notifier.Notifications))
	}
}

func TestStageStatusProgressionStagesEveryStep(t *testing.T) {
	staging := &MockStagingRepo{}
	s := newStager(staging, &MockConversationRepo{}, &MockNotifier{})

	statusEvent := func(status, ts string) []byte {
		return []byte(`{
			"event": "message:status",
			"account_id": 1,
			"message_id": "wamid-1",
			"recipient": "254700000001",
			"status": "` + status + `",
			"timestamp": "` + ts + `"
		}`)
	}

	res, err := s.Stage(context.Background(), statusEvent("delivered", "2026-09-01T10:00:00Z"))
	if err != nil || !res.Staged {
		t.Fatalf("delivered not staged: %+v %v", res, err)
	}

	// A later step of the same message's progression is a distinct event,
	// not a redelivery.
	res, err = s.Stage(context.Background(), statusEvent("read", "2026-09-01T10:05:00Z"))
	if err != nil {
		t.Fatalf("read stage failed: %v", err)
	}
	if !res.Staged {
		t.Fatal("read step was absorbed as a duplicate")
	}
	if len(staging.Events) != 2 {
		t.Fatalf("expected both status steps staged, got %d rows", len(staging.Events))
	}

	// A true redelivery of an already-staged step stays absorbed.
	res, err = s.Stage(context.Background(), statusEvent("delivered", "2026-09-01T10:00:00Z"))
	if err != nil {
		t.Fatalf("redelivery returned error: %v", err)
	}
	if res.Staged || len(staging.Events) != 2 {
		t.Errorf("redelivery staged again: staged=%v rows=%d", res.Staged, len(staging.Events))
	}
}

func TestStageTemplateRejection(t *testing.T) {
	staging := &MockStagingRepo{}
	s := newStager(staging, &MockConversationRepo{}, &MockNotifier{})

	raw := []byte(`{
		"event": "template:rejected",
		"account_id": 1,
		"message_id": "rej-1",
		"template": "september-sale",
		"reason": "policy violation",
		"timestamp": "2026-09-01T12:00:00Z"
	}`)

	res, err := s.Stage(context.Background(), raw)
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if res.Kind != model.EventTemplateRejected {
		t.Errorf("expected rejection kind, got %q", res.Kind)
	}
	if staging.Events[0].Text != "policy violation" {
		t.Errorf("expected reason captured, got %q", staging.Events[0].Text)
	}
}

func TestStageRejectsMalformedPayloads(t *testing.T) {
	s := newStager(&MockStagingRepo{}, &MockConversationRepo{}, &MockNotifier{})

	cases := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{not json`},
		{"unknown event", `{"event": "message:seen", "account_id": 1, "message_id": "x", "timestamp": "2026-09-01T10:00:00Z"}`},
		{"missing account", `{"event": "message:received", "message_id": "x", "sender": "s", "timestamp": "2026-09-01T10:00:00Z"}`},
		{"missing message id", `{"event": "message:received", "account_id": 1, "sender": "s", "timestamp": "2026-09-01T10:00:00Z"}`},
		{"missing sender", `{"event": "message:received", "account_id": 1, "message_id": "x", "timestamp": "2026-09-01T10:00:00Z"}`},
		{"missing recipient", `{"event": "message:status", "account_id": 1, "message_id": "x", "status": "delivered", "timestamp": "2026-09-01T10:00:00Z"}`},
		{"unknown status", `{"event": "message:status", "account_id": 1, "message_id": "x", "recipient": "r", "status": "vanished", "timestamp": "2026-09-01T10:00:00Z"}`},
		{"bad timestamp", `{"event": "message:received", "account_id": 1, "message_id": "x", "sender": "s", "timestamp": "yesterday"}`},
	}

	for _, tc := range cases {
		_, err := s.Stage(context.Background(), []byte(tc.raw))
		var me *appErrors.ErrMalformedEvent
		if !errors.As(err, &me) {
			t.Errorf("%s: expected ErrMalformedEvent, got %v", tc.name, err)
		}
	}
}
