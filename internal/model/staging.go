// internal/model/staging.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventStatusChange     = "status"
	EventInboundMessage   = "message"
	EventOutboundMessage  = "outbound"
	EventTemplateRejected = "rejection"
)

// StringList is a jsonb-backed string slice (agent ids on staged events,
// name sets on conversation summaries).
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("stringlist: cannot scan %T", src)
}

// Contains reports whether s is already in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// StagedEvent is a write-once normalized record of one webhook occurrence
// (or one outbound send, staged by the dispatcher). It is deduplicated on
// (provider_message_id, kind, status) and deleted only by the aggregator
// once its merge succeeded.
type StagedEvent struct {
	ID                int64      `db:"id" json:"id"`
	AccountID         int        `db:"account_id" json:"account_id"`
	Kind              string     `db:"kind" json:"kind"`
	ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id"`
	Address           string     `db:"address" json:"address"`
	Status            string     `db:"status" json:"status,omitempty"`
	Text              string     `db:"text" json:"text,omitempty"`
	AgentIDs          StringList `db:"agent_ids" json:"agent_ids,omitempty"`
	EventAt           time.Time  `db:"event_at" json:"event_at"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// ImportEntry is a contact-list import staging row, folded into conversation
// summaries by the aggregator and deleted afterwards.
type ImportEntry struct {
	ID          int64     `db:"id" json:"id"`
	AccountID   int       `db:"account_id" json:"account_id"`
	ListID      int       `db:"list_id" json:"list_id"`
	Address     string    `db:"address" json:"address"`
	DisplayName string    `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
