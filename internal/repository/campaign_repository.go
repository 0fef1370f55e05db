package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/bulkwave/messaging-backend/internal/errors"
	"github.com/bulkwave/messaging-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, accountID int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(campaignID int, status string) error
	// MarkSent transitions to the terminal state; false means the campaign
	// was already sent (run-exactly-once guard across workers).
	MarkSent(campaignID int) (bool, error)
	// ClaimScheduled flips scheduled->pending; only the claiming worker
	// publishes the dispatch job.
	ClaimScheduled(campaignID int) (bool, error)
	// ClaimDispatch flips pending->sending; only the claiming dispatcher
	// runs the send loop.
	ClaimDispatch(campaignID int) (bool, error)
	ListDueScheduled(now time.Time) ([]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignPending
	}
	query := `
        INSERT INTO campaigns (account_id, template_id, list_id, name, bindings, status, media_kind, media_ref, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.AccountID, c.TemplateID, c.ListID, c.Name, c.Bindings,
		c.Status, c.MediaKind, c.MediaRef, c.ScheduledAt, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `
        SELECT id, account_id, template_id, list_id, name, bindings, status, media_kind, media_ref, scheduled_at, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.AccountID, &c.TemplateID, &c.ListID, &c.Name,
		&c.Bindings, &c.Status, &c.MediaKind, &c.MediaRef,
		&c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, accountID int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT id, account_id, template_id, list_id, name, bindings, status, media_kind, media_ref, scheduled_at, created_at, updated_at FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if accountID > 0 {
		query += fmt.Sprintf(" AND account_id=$%d", argPos)
		args = append(args, accountID)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(
			&c.ID, &c.AccountID, &c.TemplateID, &c.ListID, &c.Name,
			&c.Bindings, &c.Status, &c.MediaKind, &c.MediaRef,
			&c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Count total
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	argPosCount := 1
	if accountID > 0 {
		countQuery += fmt.Sprintf(" AND account_id=$%d", argPosCount)
		argsCount = append(argsCount, accountID)
		argPosCount++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPosCount)
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, status, time.Now(), campaignID)
	return err
}

// ClaimDispatch flips pending->sending with a conditional update. Only the
// caller that wins the flip may run the send loop, so a double send request
// or a redelivered dispatch job cannot run the same campaign twice.
func (r *CampaignRepository) ClaimDispatch(campaignID int) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.Exec(query, model.CampaignSending, campaignID, model.CampaignPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *CampaignRepository) MarkSent(campaignID int) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status <> $1`
	res, err := r.DB.Exec(query, model.CampaignSent, campaignID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ====================== Scheduling ======================

func (r *CampaignRepository) ClaimScheduled(campaignID int) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.Exec(query, model.CampaignPending, campaignID, model.CampaignScheduled)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *CampaignRepository) ListDueScheduled(now time.Time) ([]int, error) {
	query := `SELECT id FROM campaigns WHERE status=$1 AND scheduled_at <= $2 ORDER BY scheduled_at`
	rows, err := r.DB.Query(query, model.CampaignScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
