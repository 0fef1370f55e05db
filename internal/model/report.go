// internal/model/report.go
package model

import "time"

const (
	ReportSent      = "sent"
	ReportDelivered = "delivered"
	ReportRead      = "read"
	ReportReplied   = "replied"
	ReportFailed    = "failed"
)

// reportRank orders the advancing statuses so a stale provider callback can
// never move a report backwards. "failed" is outside the ladder: it is
// terminal and reachable only from a failed send attempt.
var reportRank = map[string]int{
	ReportSent:      1,
	ReportDelivered: 2,
	ReportRead:      3,
	ReportReplied:   4,
}

// ReportStatusRank returns the position of a status on the delivery ladder,
// or 0 for statuses that never advance ("failed", unknown).
func ReportStatusRank(status string) int {
	return reportRank[status]
}

// DeliveryReport is the durable record of one attempted send to one
// recipient of a campaign.
type DeliveryReport struct {
	ID                int       `db:"id" json:"id"`
	AccountID         int       `db:"account_id" json:"account_id"`
	CampaignID        int       `db:"campaign_id" json:"campaign_id"`
	Address           string    `db:"address" json:"address"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Status            string    `db:"status" json:"status"`
	RenderedText      string    `db:"rendered_text" json:"rendered_text"`
	MediaRef          string    `db:"media_ref" json:"media_ref,omitempty"`
	LastError         string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
