package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/bulkwave/messaging-backend/internal/model"
)

type StagingRepositoryInterface interface {
	// InsertEvent stages one event; false means the same delivery
	// (provider_message_id, kind, status) was already staged. The status
	// is part of the key so distinct steps of one message's status
	// progression never absorb each other.
	InsertEvent(e *model.StagedEvent) (bool, error)
	ListPendingEvents(limit int) ([]model.StagedEvent, error)
	DeleteEvents(ids []int64) error

	InsertImport(e *model.ImportEntry) error
	ListPendingImports(limit int) ([]model.ImportEntry, error)
	DeleteImports(ids []int64) error
}

type StagingRepository struct {
	DB *sql.DB
}

// ====================== Staged events ======================

func (r *StagingRepository) InsertEvent(e *model.StagedEvent) (bool, error) {
	e.CreatedAt = time.Now()
	query := `
        INSERT INTO staged_events (account_id, kind, provider_message_id, address, status, text, agent_ids, event_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (provider_message_id, kind, status) DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRow(query,
		e.AccountID, e.Kind, e.ProviderMessageID, e.Address,
		e.Status, e.Text, e.AgentIDs, e.EventAt, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil // duplicate delivery, already staged
		}
		return false, err
	}
	return true, nil
}

func (r *StagingRepository) ListPendingEvents(limit int) ([]model.StagedEvent, error) {
	query := `
        SELECT id, account_id, kind, provider_message_id, address, status, text, agent_ids, event_at, created_at
        FROM staged_events ORDER BY id LIMIT $1
    `
	rows, err := r.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.StagedEvent{}
	for rows.Next() {
		var e model.StagedEvent
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.Kind, &e.ProviderMessageID, &e.Address,
			&e.Status, &e.Text, &e.AgentIDs, &e.EventAt, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *StagingRepository) DeleteEvents(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.DB.Exec(`DELETE FROM staged_events WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// ====================== Import staging ======================

func (r *StagingRepository) InsertImport(e *model.ImportEntry) error {
	e.CreatedAt = time.Now()
	query := `
        INSERT INTO import_entries (account_id, list_id, address, display_name, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	return r.DB.QueryRow(query, e.AccountID, e.ListID, e.Address, e.DisplayName, e.CreatedAt).Scan(&e.ID)
}

func (r *StagingRepository) ListPendingImports(limit int) ([]model.ImportEntry, error) {
	query := `
        SELECT id, account_id, list_id, address, display_name, created_at
        FROM import_entries ORDER BY id LIMIT $1
    `
	rows, err := r.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.ImportEntry{}
	for rows.Next() {
		var e model.ImportEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.ListID, &e.Address, &e.DisplayName, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *StagingRepository) DeleteImports(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.DB.Exec(`DELETE FROM import_entries WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

var _ StagingRepositoryInterface = (*StagingRepository)(nil)
