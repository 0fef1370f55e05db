// internal/model/account.go
package model

import "time"

// Account is a tenant of the platform. Quota counters live on the account
// row and are only ever moved by conditional updates in the repository, so
// consumed <= limit holds for every non-unlimited account.
type Account struct {
	ID             int       `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	ChannelAddress string    `db:"channel_address" json:"channel_address"`
	APIToken       string    `db:"api_token" json:"-"`
	QuotaConsumed  int       `db:"quota_consumed" json:"quota_consumed"`
	QuotaLimit     int       `db:"quota_limit" json:"quota_limit"`
	QuotaUnlimited bool      `db:"quota_unlimited" json:"quota_unlimited"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// QuotaRemaining reports how many more messages the account may send.
// The second return is true for unlimited accounts, where the count is
// meaningless.
func (a *Account) QuotaRemaining() (int, bool) {
	if a.QuotaUnlimited {
		return 0, true
	}
	r := a.QuotaLimit - a.QuotaConsumed
	if r < 0 {
		r = 0
	}
	return r, false
}
