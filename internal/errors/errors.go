// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrTemplateNotFound means a campaign referenced a template that no longer
// exists; the whole campaign fails before any send.
type ErrTemplateNotFound struct {
	TemplateID int
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("template with ID %d not found", e.TemplateID)
}

func NewTemplateNotFound(id int) error {
	return &ErrTemplateNotFound{TemplateID: id}
}

// ErrEmptyContactList is a campaign precondition failure.
type ErrEmptyContactList struct {
	ListID int
}

func (e *ErrEmptyContactList) Error() string {
	return fmt.Sprintf("contact list %d has no sendable contacts", e.ListID)
}

func NewEmptyContactList(id int) error {
	return &ErrEmptyContactList{ListID: id}
}

// ErrQuotaExceeded carries how many messages the account could still send
// at the time the reservation was refused.
type ErrQuotaExceeded struct {
	AccountID int
	Requested int
	Remaining int
}

func (e *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("account %d quota exceeded: requested %d, remaining %d", e.AccountID, e.Requested, e.Remaining)
}

func NewQuotaExceeded(accountID, requested, remaining int) error {
	return &ErrQuotaExceeded{AccountID: accountID, Requested: requested, Remaining: remaining}
}

// ErrCampaignAlreadySent guards the run-exactly-once lifecycle.
type ErrCampaignAlreadySent struct {
	CampaignID int
}

func (e *ErrCampaignAlreadySent) Error() string {
	return fmt.Sprintf("campaign %d was already sent", e.CampaignID)
}

func NewCampaignAlreadySent(id int) error {
	return &ErrCampaignAlreadySent{CampaignID: id}
}

// ErrMalformedEvent rejects a webhook payload at the staging boundary.
// The provider's redelivery is relied on once the upstream payload is fixed,
// so these are never retried internally.
type ErrMalformedEvent struct {
	Reason string
}

func (e *ErrMalformedEvent) Error() string {
	return fmt.Sprintf("malformed webhook event: %s", e.Reason)
}

func NewMalformedEvent(reason string) error {
	return &ErrMalformedEvent{Reason: reason}
}
