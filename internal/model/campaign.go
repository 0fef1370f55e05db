// internal/model/campaign.go
package model

import "time"

const (
	CampaignPending   = "pending"
	CampaignScheduled = "scheduled"
	CampaignSending   = "sending"
	CampaignSent      = "sent"
)

// Campaign is a one-time batch send of one template to one contact list.
// Bindings map template placeholder keys to contact attribute keys.
// A campaign is dispatched exactly once; "sent" is terminal.
type Campaign struct {
	ID          int        `db:"id" json:"id"`
	AccountID   int        `db:"account_id" json:"account_id"`
	TemplateID  int        `db:"template_id" json:"template_id"`
	ListID      int        `db:"list_id" json:"list_id"`
	Name        string     `db:"name" json:"name"`
	Bindings    Attributes `db:"bindings" json:"bindings"`
	Status      string     `db:"status" json:"status"`
	MediaKind   string     `db:"media_kind" json:"media_kind,omitempty"`
	MediaRef    string     `db:"media_ref" json:"media_ref,omitempty"`
	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
