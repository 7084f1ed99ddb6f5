// internal/repository/attempts.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/models"
)

type AttemptRepository interface {
	Insert(ctx context.Context, a *models.MatchAttempt) error
}

type PostgresAttemptRepository struct {
	db *sql.DB
}

func NewPostgresAttemptRepository(db *sql.DB) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{db: db}
}

// Insert writes one match attempt and sets its id and created_at.
func (r *PostgresAttemptRepository) Insert(ctx context.Context, a *models.MatchAttempt) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var details interface{}
	if a.Details != nil {
		b, err := json.Marshal(a.Details)
		if err != nil {
			return errors.NewInvalidPayloadError(err.Error())
		}
		details = b
	}

	var timeDiff interface{}
	if a.TimeDiffMinutes != nil {
		timeDiff = *a.TimeDiffMinutes
	}

	const query = `
		INSERT INTO match_attempts (
			payment_id, inbound_email_id, transaction_id, match_result, reason,
			payment_amount, extracted_amount, payment_name, extracted_name,
			amount_diff, time_diff_minutes, extraction_method, details, processing_time_ms
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, NULLIF($12, ''), $13, $14)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		nullInt64(a.PaymentID), a.InboundEmailID, a.TransactionID, string(a.Result), a.Reason,
		nullDecimal(a.PaymentAmount), nullDecimal(a.ExtractedAmount), a.PaymentName, a.ExtractedName,
		nullDecimal(a.AmountDiff), timeDiff, a.ExtractionMethod, details, a.ProcessingTimeMs,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return errors.NewDatabaseQueryFailedError("insert match attempt", err)
	}
	return nil
}
