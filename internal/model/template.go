// internal/model/template.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Buttons is the optional button-label list of a template, stored as jsonb.
type Buttons []string

func (b Buttons) Value() (driver.Value, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b)
}

func (b *Buttons) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	}
	return fmt.Errorf("buttons: cannot scan %T", src)
}

// Template is a provider message template. Text components may contain
// numbered placeholders like {1}. Templates are authored elsewhere and
// read-only here.
type Template struct {
	ID        int       `db:"id" json:"id"`
	AccountID int       `db:"account_id" json:"account_id"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Header    string    `db:"header" json:"header,omitempty"`
	Body      string    `db:"body" json:"body"`
	Footer    string    `db:"footer" json:"footer,omitempty"`
	Buttons   Buttons   `db:"buttons" json:"buttons,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
