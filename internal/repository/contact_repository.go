package repository

import (
	"database/sql"
	"time"

	"github.com/bulkwave/messaging-backend/internal/model"
)

// ContactRepositoryInterface defines the contact and list methods used by
// the dispatcher and the import handler.
type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	ListByList(listID int) ([]model.Contact, error)
	GetList(listID int) (*model.ContactList, error)
	CreateContact(c *model.Contact) error
	AddParticipants(listID, n int) error
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `
        SELECT id, account_id, list_id, display_name, address, attributes, subscribed, subscribed_at, unsubscribed_at
        FROM contacts WHERE id=$1
    `
	var c model.Contact
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.AccountID, &c.ListID, &c.DisplayName, &c.Address,
		&c.Attributes, &c.Subscribed, &c.SubscribedAt, &c.UnsubscribedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListByList returns every contact of a list in insertion order; the
// dispatcher iterates it as-is, which fixes the report ordering within one
// campaign run.
func (r *ContactRepository) ListByList(listID int) ([]model.Contact, error) {
	query := `
        SELECT id, account_id, list_id, display_name, address, attributes, subscribed, subscribed_at, unsubscribed_at
        FROM contacts WHERE list_id=$1 ORDER BY id
    `
	rows, err := r.DB.Query(query, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(
			&c.ID, &c.AccountID, &c.ListID, &c.DisplayName, &c.Address,
			&c.Attributes, &c.Subscribed, &c.SubscribedAt, &c.UnsubscribedAt,
		); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) GetList(listID int) (*model.ContactList, error) {
	query := `SELECT id, account_id, name, participant_count, created_at FROM contact_lists WHERE id=$1`
	var l model.ContactList
	err := r.DB.QueryRow(query, listID).Scan(&l.ID, &l.AccountID, &l.Name, &l.ParticipantCount, &l.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *ContactRepository) CreateContact(c *model.Contact) error {
	now := time.Now()
	if c.Subscribed && c.SubscribedAt == nil {
		c.SubscribedAt = &now
	}
	query := `
        INSERT INTO contacts (account_id, list_id, display_name, address, attributes, subscribed, subscribed_at, unsubscribed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.AccountID, c.ListID, c.DisplayName, c.Address, c.Attributes,
		c.Subscribed, c.SubscribedAt, c.UnsubscribedAt,
	).Scan(&c.ID)
}

// AddParticipants bumps the denormalized counter after an import batch.
func (r *ContactRepository) AddParticipants(listID, n int) error {
	query := `UPDATE contact_lists SET participant_count = participant_count + $2 WHERE id=$1`
	_, err := r.DB.Exec(query, listID, n)
	return err
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
