package controller_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bulkwave/messaging-backend/internal/controller"
	"github.com/bulkwave/messaging-backend/internal/dispatch"
	appErrors "github.com/bulkwave/messaging-backend/internal/errors"
	"github.com/bulkwave/messaging-backend/internal/model"
	"github.com/bulkwave/messaging-backend/internal/queue"
)

// --- Mock Repositories ---

type MockCampaignRepo struct {
	Campaign *model.Campaign
}

func (m *MockCampaignRepo) Create(c *model.Campaign) error { return nil }
func (m *MockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	if m.Campaign == nil {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return m.Campaign, nil
}
func (m *MockCampaignRepo) ListCampaigns(offset, limit, accountID int, status string) ([]*model.Campaign, int, error) {
	return []*model.Campaign{}, 0, nil
}
func (m *MockCampaignRepo) UpdateStatus(campaignID int, status string) error { return nil }
func (m *MockCampaignRepo) MarkSent(campaignID int) (bool, error)            { return true, nil }
func (m *MockCampaignRepo) ClaimScheduled(campaignID int) (bool, error)      { return false, nil }
func (m *MockCampaignRepo) ClaimDispatch(campaignID int) (bool, error)       { return true, nil }
func (m *MockCampaignRepo) ListDueScheduled(now time.Time) ([]int, error) {
	return nil, nil
}

type MockTemplateRepo struct{}

func (m *MockTemplateRepo) GetByID(id int) (*model.Template, error) {
	return &model.Template{
		ID:   id,
		Body: "Hi {name}, check out our {product} sale in {city}!",
	}, nil
}

type MockContactRepo struct{}

func (m *MockContactRepo) GetByID(id int) (*model.Contact, error) {
	return &model.Contact{
		ID:          id,
		DisplayName: "Alice Smith",
		Address:     "254700000001",
		Attributes:  model.Attributes{"city": "Nairobi", "product": "Shoes"},
		Subscribed:  true,
	}, nil
}
func (m *MockContactRepo) ListByList(listID int) ([]model.Contact, error) { return nil, nil }
func (m *MockContactRepo) GetList(listID int) (*model.ContactList, error) {
	return nil, nil
}
func (m *MockContactRepo) CreateContact(c *model.Contact) error { return nil }
func (m *MockContactRepo) AddParticipants(listID, n int) error  { return nil }

type MockReportRepo struct {
	Stats map[string]int
}

func (m *MockReportRepo) Create(rep *model.DeliveryReport) error { return nil }
func (m *MockReportRepo) ListByCampaign(campaignID int) ([]model.DeliveryReport, error) {
	return []model.DeliveryReport{{CampaignID: campaignID, Status: model.ReportSent}}, nil
}
func (m *MockReportRepo) StatsByCampaign(campaignID int) (map[string]int, error) {
	return m.Stats, nil
}
func (m *MockReportRepo) AdvanceStatus(providerMessageID, status string, at time.Time) error {
	return nil
}

// MockQueue records published jobs.
type MockQueue struct {
	Published []queue.DispatchJob
}

func (m *MockQueue) Publish(topic string, payload any) error {
	job, _ := payload.(queue.DispatchJob)
	m.Published = append(m.Published, job)
	return nil
}
func (m *MockQueue) Subscribe(topic string, handler func(body []byte) error) error { return nil }

func newRouter(campaigns *MockCampaignRepo, reports *MockReportRepo, q *MockQueue) *chi.Mux {
	c := &controller.CampaignController{
		Dispatcher: &dispatch.Dispatcher{
			Campaigns: campaigns,
			Templates: &MockTemplateRepo{},
			Contacts:  &MockContactRepo{},
			Reports:   reports,
			Log:       zerolog.Nop(),
		},
		Queue: q,
		Log:   zerolog.Nop(),
	}

	r := chi.NewRouter()
	r.Get("/campaigns/{id}", c.GetCampaign)
	r.Get("/campaigns/{id}/reports", c.ListReports)
	r.Post("/campaigns/{id}/send", c.SendCampaign)
	r.Post("/campaigns/{id}/personalized-preview", c.PersonalizedPreview)
	return r
}

// --- Tests ---

func TestPersonalizedPreviewHandler(t *testing.T) {
	campaigns := &MockCampaignRepo{Campaign: &model.Campaign{
		ID: 1, TemplateID: 2,
		Bindings: model.Attributes{"name": "name", "city": "city", "product": "product"},
	}}
	r := newRouter(campaigns, &MockReportRepo{}, &MockQueue{})

	body := bytes.NewBufferString(`{"contact_id": 7}`)
	req := httptest.NewRequest(http.MethodPost, "/campaigns/1/personalized-preview", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RenderedMessage string `json:"rendered_message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	expected := "Hi Alice Smith, check out our Shoes sale in Nairobi!"
	if resp.RenderedMessage != expected {
		t.Errorf("expected %q, got %q", expected, resp.RenderedMessage)
	}
}

func TestSendCampaignEnqueuesJob(t *testing.T) {
	campaigns := &MockCampaignRepo{Campaign: &model.Campaign{
		ID: 1, TemplateID: 2, Status: model.CampaignPending,
	}}
	q := &MockQueue{}
	r := newRouter(campaigns, &MockReportRepo{Stats: map[string]int{}}, q)

	req := httptest.NewRequest(http.MethodPost, "/campaigns/1/send", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(q.Published) != 1 || q.Published[0].CampaignID != 1 {
		t.Errorf("expected one dispatch job for campaign 1, got %v", q.Published)
	}
}

func TestSendCampaignConflictsWhenAlreadySent(t *testing.T) {
	campaigns := &MockCampaignRepo{Campaign: &model.Campaign{
		ID: 1, TemplateID: 2, Status: model.CampaignSent,
	}}
	q := &MockQueue{}
	r := newRouter(campaigns, &MockReportRepo{Stats: map[string]int{}}, q)

	req := httptest.NewRequest(http.MethodPost, "/campaigns/1/send", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if len(q.Published) != 0 {
		t.Error("already-sent campaign was enqueued again")
	}
}

func TestGetCampaignNotFound(t *testing.T) {
	r := newRouter(&MockCampaignRepo{}, &MockReportRepo{}, &MockQueue{})

	req := httptest.NewRequest(http.MethodGet, "/campaigns/99", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetCampaignIncludesStats(t *testing.T) {
	campaigns := &MockCampaignRepo{Campaign: &model.Campaign{
		ID: 1, TemplateID: 2, Status: model.CampaignSent,
	}}
	reports := &MockReportRepo{Stats: map[string]int{"sent": 3, "delivered": 2, "failed": 1}}
	r := newRouter(campaigns, reports, &MockQueue{})

	req := httptest.NewRequest(http.MethodGet, "/campaigns/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Stats map[string]int `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Stats["sent"] != 3 || resp.Stats["failed"] != 1 {
		t.Errorf("unexpected stats: %v", resp.Stats)
	}
}

func TestListReports(t *testing.T) {
	campaigns := &MockCampaignRepo{Campaign: &model.Campaign{ID: 1}}
	r := newRouter(campaigns, &MockReportRepo{}, &MockQueue{})

	req := httptest.NewRequest(http.MethodGet, "/campaigns/1/reports", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data []model.DeliveryReport `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Status != model.ReportSent {
		t.Errorf("unexpected reports: %v", resp.Data)
	}
}
