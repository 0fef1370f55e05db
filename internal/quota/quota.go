// Package quota enforces the per-account message cap. All bookkeeping is
// store-backed and addressed by account id, never in-process counters, so
// any number of stateless workers share one source of truth.
package quota

import (
	appErrors "github.com/bulkwave/messaging-backend/internal/errors"
	"github.com/bulkwave/messaging-backend/internal/repository"
)

// Guard answers "may this account send n more messages" and commits the
// consumption. Reserve is a single conditional update at the store, so the
// quota can never be oversold even under concurrent campaigns.
type Guard struct {
	Accounts repository.AccountRepositoryInterface
}

// Remaining reports the account's current headroom. Unlimited accounts
// return (0, true).
func (g *Guard) Remaining(accountID int) (int, bool, error) {
	acct, err := g.Accounts.GetByID(accountID)
	if err != nil {
		return 0, false, err
	}
	if acct == nil {
		return 0, false, nil
	}
	n, unlimited := acct.QuotaRemaining()
	return n, unlimited, nil
}

// Reserve takes n messages from the quota or refuses the whole request.
// Nothing is spent on refusal.
func (g *Guard) Reserve(accountID, n int) error {
	ok, err := g.Accounts.ReserveQuota(accountID, n)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	remaining, _, err := g.Remaining(accountID)
	if err != nil {
		return err
	}
	return appErrors.NewQuotaExceeded(accountID, n, remaining)
}

// Release returns the unused part of a reservation. Failed sends never
// consume quota: the dispatcher reserves the batch up front and releases
// reserved-minus-successful once, after the loop.
func (g *Guard) Release(accountID, n int) error {
	return g.Accounts.ReleaseQuota(accountID, n)
}
