// internal/model/conversation.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	ConversationOpen   = "open"
	ConversationClosed = "closed"
)

// NameOrigin records which list a display name came from, so re-importing
// the same contact from the same list never duplicates provenance.
type NameOrigin struct {
	Name   string `json:"name"`
	ListID int    `json:"list_id"`
}

// Provenance is the jsonb-backed list of name origins.
type Provenance []NameOrigin

func (p Provenance) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

func (p *Provenance) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("provenance: cannot scan %T", src)
}

// Has reports whether the exact (name, listID) pair is already recorded.
func (p Provenance) Has(name string, listID int) bool {
	for _, o := range p {
		if o.Name == name && o.ListID == listID {
			return true
		}
	}
	return false
}

// ConversationSummary is the single durable rollup per
// (account, channel address, counterparty address). Every write path
// upserts; only the aggregator mutates it.
type ConversationSummary struct {
	ID              int        `db:"id" json:"id"`
	AccountID       int        `db:"account_id" json:"account_id"`
	ChannelAddress  string     `db:"channel_address" json:"channel_address"`
	Address         string     `db:"address" json:"address"`
	DisplayNames    StringList `db:"display_names" json:"display_names"`
	NameProvenance  Provenance `db:"name_provenance" json:"name_provenance"`
	AgentIDs        StringList `db:"agent_ids" json:"agent_ids"`
	LastMessageText string     `db:"last_message_text" json:"last_message_text,omitempty"`
	LastSentAt      *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	LastReceivedAt  *time.Time `db:"last_received_at" json:"last_received_at,omitempty"`
	Status          string     `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// AddName appends name to the display-name set and records its origin.
func (c *ConversationSummary) AddName(name string, listID int) {
	if name == "" {
		return
	}
	if !c.DisplayNames.Contains(name) {
		c.DisplayNames = append(c.DisplayNames, name)
	}
	if !c.NameProvenance.Has(name, listID) {
		c.NameProvenance = append(c.NameProvenance, NameOrigin{Name: name, ListID: listID})
	}
}

// AddAgents unions agent ids into the assigned set; agents are never removed.
func (c *ConversationSummary) AddAgents(ids []string) {
	for _, id := range ids {
		if id != "" && !c.AgentIDs.Contains(id) {
			c.AgentIDs = append(c.AgentIDs, id)
		}
	}
}
