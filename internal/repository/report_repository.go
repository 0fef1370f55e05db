package repository

import (
	"database/sql"
	"time"

	"github.com/bulkwave/messaging-backend/internal/model"
)

type ReportRepositoryInterface interface {
	Create(rep *model.DeliveryReport) error
	ListByCampaign(campaignID int) ([]model.DeliveryReport, error)
	StatsByCampaign(campaignID int) (map[string]int, error)
	AdvanceStatus(providerMessageID, status string, at time.Time) error
}

type ReportRepository struct {
	DB *sql.DB
}

// Create inserts one delivery report. The dispatcher calls this once per
// attempt, immediately after the send settles, so a crash mid-campaign
// never loses reports for messages that already went out.
func (r *ReportRepository) Create(rep *model.DeliveryReport) error {
	now := time.Now()
	rep.CreatedAt = now
	rep.UpdatedAt = now
	query := `
        INSERT INTO delivery_reports
        (account_id, campaign_id, address, provider_message_id, status, rendered_text, media_ref, last_error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		rep.AccountID, rep.CampaignID, rep.Address, rep.ProviderMessageID,
		rep.Status, rep.RenderedText, rep.MediaRef, rep.LastError,
		rep.CreatedAt, rep.UpdatedAt,
	).Scan(&rep.ID)
}

func (r *ReportRepository) ListByCampaign(campaignID int) ([]model.DeliveryReport, error) {
	query := `
        SELECT id, account_id, campaign_id, address, provider_message_id, status, rendered_text, media_ref, last_error, created_at, updated_at
        FROM delivery_reports WHERE campaign_id=$1 ORDER BY id
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []model.DeliveryReport{}
	for rows.Next() {
		var rep model.DeliveryReport
		if err := rows.Scan(
			&rep.ID, &rep.AccountID, &rep.CampaignID, &rep.Address,
			&rep.ProviderMessageID, &rep.Status, &rep.RenderedText,
			&rep.MediaRef, &rep.LastError, &rep.CreatedAt, &rep.UpdatedAt,
		); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func (r *ReportRepository) StatsByCampaign(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM delivery_reports WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.ReportSent:      0,
		model.ReportDelivered: 0,
		model.ReportRead:      0,
		model.ReportReplied:   0,
		model.ReportFailed:    0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// AdvanceStatus moves a report up the sent->delivered->read->replied ladder.
// The rank guard makes redelivered or out-of-order provider callbacks
// harmless: a stale "sent" can never overwrite a later "read", and "failed"
// rows never advance.
func (r *ReportRepository) AdvanceStatus(providerMessageID, status string, at time.Time) error {
	rank := model.ReportStatusRank(status)
	if rank == 0 {
		return nil
	}
	query := `
        UPDATE delivery_reports
        SET status=$2, updated_at=$3
        WHERE provider_message_id=$1
          AND status <> 'failed'
          AND CASE status
                WHEN 'sent' THEN 1
                WHEN 'delivered' THEN 2
                WHEN 'read' THEN 3
                WHEN 'replied' THEN 4
                ELSE 0
              END < $4
    `
	_, err := r.DB.Exec(query, providerMessageID, status, at, rank)
	return err
}

var _ ReportRepositoryInterface = (*ReportRepository)(nil)
