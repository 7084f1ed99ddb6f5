// internal/repository/templates.go
package repository

import (
	"context"
	"database/sql"

	"transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/models"
)

type TemplateRepository interface {
	ListActive(ctx context.Context) ([]models.BankTemplate, error)
}

type PostgresTemplateRepository struct {
	db *sql.DB
}

func NewPostgresTemplateRepository(db *sql.DB) *PostgresTemplateRepository {
	return &PostgresTemplateRepository{db: db}
}

// ListActive returns active templates by priority, highest first.
func (r *PostgresTemplateRepository) ListActive(ctx context.Context) ([]models.BankTemplate, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
		SELECT id, bank_name, COALESCE(sender_email, ''), COALESCE(sender_domain, ''), priority, is_active,
		       COALESCE(amount_field_label, ''), COALESCE(sender_name_field_label, ''), COALESCE(account_number_field_label, ''),
		       COALESCE(amount_pattern, ''), COALESCE(sender_name_pattern, ''), COALESCE(account_number_pattern, '')
		FROM bank_templates
		WHERE is_active = TRUE
		ORDER BY priority DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list bank templates", err)
	}
	defer rows.Close()

	var out []models.BankTemplate
	for rows.Next() {
		var t models.BankTemplate
		if err := rows.Scan(
			&t.ID, &t.BankName, &t.SenderEmail, &t.SenderDomain, &t.Priority, &t.IsActive,
			&t.AmountFieldLabel, &t.SenderNameFieldLabel, &t.AccountNumberFieldLabel,
			&t.AmountPattern, &t.SenderNamePattern, &t.AccountNumberPattern,
		); err != nil {
			return nil, errors.NewDatabaseQueryFailedError("scan bank template", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("iterate bank templates", err)
	}
	return out, nil
}
