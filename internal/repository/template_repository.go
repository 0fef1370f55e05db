package repository

import (
	"database/sql"

	"github.com/bulkwave/messaging-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(id int) (*model.Template, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(id int) (*model.Template, error) {
	query := `
        SELECT id, account_id, name, category, header, body, footer, buttons, created_at
        FROM templates WHERE id=$1
    `
	var t model.Template
	err := r.DB.QueryRow(query, id).Scan(
		&t.ID, &t.AccountID, &t.Name, &t.Category,
		&t.Header, &t.Body, &t.Footer, &t.Buttons, &t.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
