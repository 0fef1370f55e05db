package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bulkwave/messaging-backend/internal/model"
)

type ConversationRepositoryInterface interface {
	GetByID(id int) (*model.ConversationSummary, error)
	// GetByCounterparty returns the summary for an account's conversation
	// with one address, or nil when none exists yet.
	GetByCounterparty(accountID int, address string) (*model.ConversationSummary, error)
	ListByAccount(accountID, offset, limit int) ([]model.ConversationSummary, int, error)
	// Merge runs apply against the summary for the key under a row lock,
	// creating the row first if needed. Concurrent sweeps merging the same
	// counterparty serialize here instead of losing updates.
	Merge(accountID int, channelAddress, address string, apply func(*model.ConversationSummary) error) error
}

type ConversationRepository struct {
	DB *sql.DB
}

const conversationColumns = `id, account_id, channel_address, address, display_names, name_provenance, agent_ids,
        last_message_text, last_sent_at, last_received_at, status, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*model.ConversationSummary, error) {
	var c model.ConversationSummary
	err := row.Scan(
		&c.ID, &c.AccountID, &c.ChannelAddress, &c.Address,
		&c.DisplayNames, &c.NameProvenance, &c.AgentIDs,
		&c.LastMessageText, &c.LastSentAt, &c.LastReceivedAt,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) GetByID(id int) (*model.ConversationSummary, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversation_summaries WHERE id=$1`
	c, err := scanConversation(r.DB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *ConversationRepository) GetByCounterparty(accountID int, address string) (*model.ConversationSummary, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversation_summaries WHERE account_id=$1 AND address=$2 LIMIT 1`
	c, err := scanConversation(r.DB.QueryRow(query, accountID, address))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *ConversationRepository) ListByAccount(accountID, offset, limit int) ([]model.ConversationSummary, int, error) {
	query := `SELECT ` + conversationColumns + `
        FROM conversation_summaries WHERE account_id=$1
        ORDER BY GREATEST(COALESCE(last_sent_at, 'epoch'), COALESCE(last_received_at, 'epoch')) DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(query, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := []model.ConversationSummary{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM conversation_summaries WHERE account_id=$1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// Merge upserts the summary row and mutates it under SELECT ... FOR UPDATE.
// The insert-if-missing plus the row lock make the read-modify-write atomic
// per key: two sweeps touching the same conversation apply one after the
// other, never over each other.
func (r *ConversationRepository) Merge(accountID int, channelAddress, address string, apply func(*model.ConversationSummary) error) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO conversation_summaries
        (account_id, channel_address, address, display_names, name_provenance, agent_ids, last_message_text, status, created_at, updated_at)
        VALUES ($1, $2, $3, '[]', '[]', '[]', '', $4, NOW(), NOW())
        ON CONFLICT (account_id, channel_address, address) DO NOTHING
    `, accountID, channelAddress, address, model.ConversationOpen)
	if err != nil {
		return err
	}

	query := `SELECT ` + conversationColumns + `
        FROM conversation_summaries
        WHERE account_id=$1 AND channel_address=$2 AND address=$3
        FOR UPDATE`
	c, err := scanConversation(tx.QueryRow(query, accountID, channelAddress, address))
	if err != nil {
		return fmt.Errorf("conversation merge: lock row: %w", err)
	}

	if err := apply(c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()

	_, err = tx.Exec(`
        UPDATE conversation_summaries
        SET display_names=$2, name_provenance=$3, agent_ids=$4,
            last_message_text=$5, last_sent_at=$6, last_received_at=$7,
            status=$8, updated_at=$9
        WHERE id=$1
    `, c.ID, c.DisplayNames, c.NameProvenance, c.AgentIDs,
		c.LastMessageText, c.LastSentAt, c.LastReceivedAt, c.Status, c.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

var _ ConversationRepositoryInterface = (*ConversationRepository)(nil)
