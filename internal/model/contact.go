// internal/model/contact.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Attributes is a contact's free-form attribute bag, stored as jsonb.
type Attributes map[string]string

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *Attributes) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Attributes{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return fmt.Errorf("attributes: cannot scan %T", src)
}

// ContactList is a named set of contacts for one account.
// ParticipantCount is denormalized and maintained on import.
type ContactList struct {
	ID               int       `db:"id" json:"id"`
	AccountID        int       `db:"account_id" json:"account_id"`
	Name             string    `db:"name" json:"name"`
	ParticipantCount int       `db:"participant_count" json:"participant_count"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Contact belongs to exactly one list; the same address may recur across
// lists of the same account.
type Contact struct {
	ID             int        `db:"id" json:"id"`
	AccountID      int        `db:"account_id" json:"account_id"`
	ListID         int        `db:"list_id" json:"list_id"`
	DisplayName    string     `db:"display_name" json:"display_name"`
	Address        string     `db:"address" json:"address"`
	Attributes     Attributes `db:"attributes" json:"attributes"`
	Subscribed     bool       `db:"subscribed" json:"subscribed"`
	SubscribedAt   *time.Time `db:"subscribed_at" json:"subscribed_at,omitempty"`
	UnsubscribedAt *time.Time `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
}
