// internal/repository/emails.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/models"
)

const emailColumns = `
	id, message_id, mailbox_id, COALESCE(subject, ''), COALESCE(from_email, ''), COALESCE(from_name, ''),
	COALESCE(text_body, ''), COALESCE(html_body, ''), email_date,
	amount, COALESCE(account_number, ''), COALESCE(sender_name, ''), COALESCE(payer_account_number, ''),
	transaction_date, COALESCE(reference, ''), COALESCE(bank, ''), COALESCE(extraction_method, ''),
	matched_payment_id, matched_at`

// EmailRepository is the durable store behind ingestion dedupe and rechecks.
type EmailRepository interface {
	Stage(ctx context.Context, e *models.InboundEmail) (bool, error)
	MarkForwarded(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.InboundEmail, error)
	SaveExtraction(ctx context.Context, id int64, sig *models.ExtractedSignal, diagnostics interface{}) error
	ListRecheckCandidates(ctx context.Context, q RecheckQuery) ([]*models.InboundEmail, error)
}

// RecheckQuery selects unbound emails that may settle one request.
type RecheckQuery struct {
	Amount        decimal.Decimal
	Tolerance     decimal.Decimal
	AccountNumber string
	CreatedAt     time.Time
	LookBack      time.Duration
	// MailboxID "" searches every mailbox.
	MailboxID string
	Limit     int
}

type PostgresEmailRepository struct {
	db *sql.DB
}

func NewPostgresEmailRepository(db *sql.DB) *PostgresEmailRepository {
	return &PostgresEmailRepository{db: db}
}

// Stage stores e unless its message id is already known and reports whether
// the email still has to be forwarded: true for a new row and for a known row
// that was never marked forwarded. e.ID is set whenever it returns true.
func (r *PostgresEmailRepository) Stage(ctx context.Context, e *models.InboundEmail) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
		WITH ins AS (
			INSERT INTO inbound_emails (message_id, mailbox_id, subject, from_email, from_name, text_body, html_body, email_date)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
			ON CONFLICT (message_id) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM inbound_emails
		WHERE message_id = $1 AND forwarded_at IS NULL AND NOT EXISTS (SELECT 1 FROM ins)`

	err := r.db.QueryRowContext(ctx, query,
		e.MessageID, e.MailboxID, e.Subject, e.FromEmail, e.FromName, e.TextBody, e.HTMLBody, e.EmailDate,
	).Scan(&e.ID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewDatabaseQueryFailedError("stage inbound email", err)
	}
	return true, nil
}

// MarkForwarded records that a process-email job exists for the email.
func (r *PostgresEmailRepository) MarkForwarded(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `UPDATE inbound_emails SET forwarded_at = NOW() WHERE id = $1 AND forwarded_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return errors.NewDatabaseQueryFailedError("mark email forwarded", err)
	}
	return nil
}

func (r *PostgresEmailRepository) GetByID(ctx context.Context, id int64) (*models.InboundEmail, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + emailColumns + ` FROM inbound_emails WHERE id = $1`

	e, err := scanEmail(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewEmailNotFoundError(fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("get inbound email", err)
	}
	return e, nil
}

// SaveExtraction stores the extracted fields and diagnostics. A nil signal
// records a failed extraction.
func (r *PostgresEmailRepository) SaveExtraction(ctx context.Context, id int64, sig *models.ExtractedSignal, diagnostics interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	diag, err := json.Marshal(diagnostics)
	if err != nil {
		return errors.NewInvalidPayloadError(fmt.Sprintf("diagnostics: %v", err))
	}

	const query = `
		UPDATE inbound_emails SET
			amount = $2,
			account_number = NULLIF($3, ''),
			sender_name = NULLIF($4, ''),
			payer_account_number = NULLIF($5, ''),
			transaction_date = $6,
			reference = NULLIF($7, ''),
			bank = NULLIF($8, ''),
			extraction_method = NULLIF($9, ''),
			extraction_diagnostics = $10
		WHERE id = $1`

	var (
		amount, txDate                          interface{}
		acct, sender, payerAcct, ref, bank, how string
	)
	if sig != nil {
		amount = sig.Amount
		txDate = nullTime(sig.TransactionDate)
		acct, sender, payerAcct = sig.AccountNumber, sig.SenderName, sig.PayerAccountNumber
		ref, bank, how = sig.Reference, sig.Bank, sig.Method
	}

	if _, err := r.db.ExecContext(ctx, query,
		id, amount, acct, sender, payerAcct, txDate, ref, bank, how, diag,
	); err != nil {
		return errors.NewDatabaseQueryFailedError("save extraction", err)
	}
	return nil
}

// ListRecheckCandidates returns unbound emails received no earlier than
// CreatedAt-LookBack whose amount is within tolerance or whose account
// number matches, newest first. Emails never extracted are included; emails
// whose extraction failed are not.
func (r *PostgresEmailRepository) ListRecheckCandidates(ctx context.Context, q RecheckQuery) ([]*models.InboundEmail, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + emailColumns + `
		FROM inbound_emails
		WHERE matched_payment_id IS NULL
		  AND email_date >= $1
		  AND (
		        (extraction_method IS NULL AND extraction_diagnostics IS NULL)
		     OR amount BETWEEN $2 AND $3
		     OR ($4::text <> '' AND account_number = $4::text)
		  )
		  AND ($5::text = '' OR mailbox_id = $5::text)
		ORDER BY email_date DESC
		LIMIT $6`

	rows, err := r.db.QueryContext(ctx, query,
		q.CreatedAt.Add(-q.LookBack), q.Amount.Sub(q.Tolerance), q.Amount.Add(q.Tolerance),
		q.AccountNumber, q.MailboxID, limit,
	)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list recheck emails", err)
	}
	defer rows.Close()

	var out []*models.InboundEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, errors.NewDatabaseQueryFailedError("scan recheck email", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("iterate recheck emails", err)
	}
	return out, nil
}

func scanEmail(row rowScanner) (*models.InboundEmail, error) {
	var (
		e                 models.InboundEmail
		amount            decimal.NullDecimal
		sig               models.ExtractedSignal
		txDate, matchedAt sql.NullTime
		matchedPayment    sql.NullInt64
	)

	err := row.Scan(
		&e.ID, &e.MessageID, &e.MailboxID, &e.Subject, &e.FromEmail, &e.FromName,
		&e.TextBody, &e.HTMLBody, &e.EmailDate,
		&amount, &sig.AccountNumber, &sig.SenderName, &sig.PayerAccountNumber,
		&txDate, &sig.Reference, &sig.Bank, &sig.Method,
		&matchedPayment, &matchedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount.Valid {
		sig.Amount = amount.Decimal
		sig.TransactionDate = timePtr(txDate)
		e.Extracted = &sig
	}
	e.MatchedPaymentID = int64Ptr(matchedPayment)
	e.MatchedAt = timePtr(matchedAt)
	return &e, nil
}
