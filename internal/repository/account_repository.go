package repository

import (
	"database/sql"

	"github.com/bulkwave/messaging-backend/internal/model"
)

// AccountRepositoryInterface defines the account and quota operations the
// services need. Quota moves only through the conditional update in
// ReserveQuota, so multiple workers can never oversell an account.
type AccountRepositoryInterface interface {
	GetByID(id int) (*model.Account, error)
	ReserveQuota(accountID, n int) (bool, error)
	ReleaseQuota(accountID, n int) error
}

type AccountRepository struct {
	DB *sql.DB
}

func (r *AccountRepository) GetByID(id int) (*model.Account, error) {
	query := `
        SELECT id, name, channel_address, api_token, quota_consumed, quota_limit, quota_unlimited, created_at
        FROM accounts WHERE id=$1
    `
	var a model.Account
	err := r.DB.QueryRow(query, id).Scan(
		&a.ID, &a.Name, &a.ChannelAddress, &a.APIToken,
		&a.QuotaConsumed, &a.QuotaLimit, &a.QuotaUnlimited, &a.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ReserveQuota atomically takes n messages from the account's quota.
// The WHERE clause is the whole invariant: the update only lands when the
// account is unlimited or has room, so concurrent campaigns for one account
// cannot both win the same headroom.
func (r *AccountRepository) ReserveQuota(accountID, n int) (bool, error) {
	query := `
        UPDATE accounts
        SET quota_consumed = quota_consumed + $2
        WHERE id=$1 AND (quota_unlimited OR quota_consumed + $2 <= quota_limit)
    `
	res, err := r.DB.Exec(query, accountID, n)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ReleaseQuota returns unused reservation after a batch (reserved minus
// actually-successful sends). Floors at zero so a stray release can never
// go negative.
func (r *AccountRepository) ReleaseQuota(accountID, n int) error {
	if n <= 0 {
		return nil
	}
	query := `UPDATE accounts SET quota_consumed = GREATEST(quota_consumed - $2, 0) WHERE id=$1`
	_, err := r.DB.Exec(query, accountID, n)
	return err
}

var _ AccountRepositoryInterface = (*AccountRepository)(nil)
