// internal/repository/payments.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/common/database"
	"transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/models"
)

const queryTimeout = 5 * time.Second

const paymentColumns = `
	pr.id, pr.transaction_id, pr.amount, COALESCE(pr.payer_name, ''), COALESCE(pr.account_number, ''),
	pr.status, pr.business_id, COALESCE(pr.webhook_url, ''), pr.expires_at, pr.created_at,
	COALESCE(b.mailbox_id, ''),
	pr.matched_at, pr.received_amount, COALESCE(pr.payer_account_number, ''), COALESCE(pr.bank, ''),
	pr.is_mismatch, COALESCE(pr.mismatch_reason, ''),
	pr.charge_percentage, pr.charge_fixed, pr.total_charges, pr.business_receives, pr.charges_paid_by_customer,
	pr.email_data, pr.processed_email_id,
	pr.webhook_status, pr.webhook_attempts, pr.webhook_urls_sent, COALESCE(pr.webhook_last_error, ''), pr.webhook_sent_at`

// PaymentRepository persists payment requests and their approval state.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.PaymentRequest) error
	GetByID(ctx context.Context, id int64) (*models.PaymentRequest, error)
	ListCandidates(ctx context.Context, q CandidateQuery) ([]*models.PaymentRequest, error)
	Approve(ctx context.Context, a Approval) error
	UpdateWebhookDelivery(ctx context.Context, paymentID int64, rec models.WebhookDeliveryRecord) error
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
}

// CandidateQuery selects the open requests an email may settle.
type CandidateQuery struct {
	MailboxID string
	EmailDate time.Time
	LookBack  time.Duration
	Now       time.Time
}

// Approval is everything stamped on a request when it is settled by an email.
type Approval struct {
	PaymentID          int64
	EmailID            int64
	ReceivedAmount     decimal.Decimal
	MatchedAt          time.Time
	PayerName          string
	PayerAccountNumber string
	Bank               string
	IsMismatch         bool
	MismatchReason     string
	Charges            models.ChargeBreakdown
	EmailData          map[string]interface{}
}

type PostgresPaymentRepository struct {
	db *sql.DB
}

func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// Create inserts p and fills in its id, status and created_at. A duplicate
// transaction id is an INVALID_PAYLOAD error.
func (r *PostgresPaymentRepository) Create(ctx context.Context, p *models.PaymentRequest) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
		INSERT INTO payment_requests (transaction_id, amount, payer_name, account_number, business_id, webhook_url, expires_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), $7)
		RETURNING id, status, created_at`

	var status string
	err := r.db.QueryRowContext(ctx, query,
		p.TransactionID, p.Amount, p.PayerName, p.AccountNumber,
		nullInt64(p.BusinessID), p.WebhookURL, nullTime(p.ExpiresAt),
	).Scan(&p.ID, &status, &p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errors.NewInvalidPayloadError(fmt.Sprintf("transaction_id %q already exists", p.TransactionID))
		}
		return errors.NewDatabaseQueryFailedError("insert payment request", err)
	}
	p.Status = models.PaymentStatus(status)
	return nil
}

func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id int64) (*models.PaymentRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + `
		FROM payment_requests pr
		LEFT JOIN businesses b ON b.id = pr.business_id
		WHERE pr.id = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewPaymentNotFoundError(fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("get payment request", err)
	}
	return p, nil
}

// ListCandidates returns pending, unexpired requests created no earlier than
// EmailDate-LookBack and scoped to the mailbox, oldest first. Requests whose
// business has no mailbox belong to the shared pool.
func (r *PostgresPaymentRepository) ListCandidates(ctx context.Context, q CandidateQuery) ([]*models.PaymentRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + `
		FROM payment_requests pr
		LEFT JOIN businesses b ON b.id = pr.business_id
		WHERE pr.status = 'pending'
		  AND (pr.expires_at IS NULL OR pr.expires_at > $1)
		  AND pr.created_at >= $2
		  AND (b.mailbox_id IS NULL OR b.mailbox_id = $3)
		ORDER BY pr.created_at ASC, pr.id ASC`

	rows, err := r.db.QueryContext(ctx, query, q.Now, q.EmailDate.Add(-q.LookBack), q.MailboxID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list candidate payments", err)
	}
	defer rows.Close()

	var out []*models.PaymentRequest
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, errors.NewDatabaseQueryFailedError("scan candidate payment", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("iterate candidate payments", err)
	}
	return out, nil
}

// Approve settles a request and binds the email in one transaction. Either
// side having been settled already rolls back with ALREADY_PROCESSED.
func (r *PostgresPaymentRepository) Approve(ctx context.Context, a Approval) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	emailData, err := json.Marshal(a.EmailData)
	if err != nil {
		return errors.NewInvalidPayloadError(fmt.Sprintf("email snapshot: %v", err))
	}

	const approvePayment = `
		UPDATE payment_requests SET
			status = 'approved',
			matched_at = $2,
			received_amount = $3,
			payer_name = COALESCE(NULLIF(payer_name, ''), NULLIF($4, '')),
			payer_account_number = NULLIF($5, ''),
			bank = NULLIF($6, ''),
			is_mismatch = $7,
			mismatch_reason = NULLIF($8, ''),
			charge_percentage = $9,
			charge_fixed = $10,
			total_charges = $11,
			business_receives = $12,
			charges_paid_by_customer = $13,
			email_data = $14,
			processed_email_id = $15
		WHERE id = $1 AND status = 'pending'`

	const bindEmail = `
		UPDATE inbound_emails SET matched_payment_id = $1, matched_at = $2, is_matched = TRUE
		WHERE id = $3 AND matched_payment_id IS NULL`

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, approvePayment,
			a.PaymentID, a.MatchedAt, a.ReceivedAmount, a.PayerName, a.PayerAccountNumber, a.Bank,
			a.IsMismatch, a.MismatchReason,
			a.Charges.Percentage, a.Charges.Fixed, a.Charges.Total, a.Charges.BusinessReceives, a.Charges.PaidByCustomer,
			emailData, a.EmailID,
		)
		if err != nil {
			return errors.NewDatabaseQueryFailedError("approve payment", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NewAlreadyProcessedError(fmt.Sprintf("payment %d is no longer pending", a.PaymentID))
		}

		res, err = tx.ExecContext(ctx, bindEmail, a.PaymentID, a.MatchedAt, a.EmailID)
		if err != nil {
			return errors.NewDatabaseQueryFailedError("bind email", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NewAlreadyProcessedError(fmt.Sprintf("email %d is already bound", a.EmailID))
		}
		return nil
	})
}

func (r *PostgresPaymentRepository) UpdateWebhookDelivery(ctx context.Context, paymentID int64, rec models.WebhookDeliveryRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	urls := rec.URLsSent
	if urls == nil {
		urls = []string{}
	}
	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return err
	}

	const query = `
		UPDATE payment_requests SET
			webhook_status = $2,
			webhook_attempts = $3,
			webhook_urls_sent = $4,
			webhook_last_error = NULLIF($5, ''),
			webhook_sent_at = $6
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query,
		paymentID, string(rec.Status), rec.Attempts, urlsJSON, rec.LastError, nullTime(rec.SentAt),
	); err != nil {
		return errors.NewDatabaseQueryFailedError("update webhook delivery", err)
	}
	return nil
}

// GetBusiness loads a business together with its approved website webhooks.
// An unknown id yields nil without error.
func (r *PostgresPaymentRepository) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
		SELECT id, name, COALESCE(webhook_url, ''), COALESCE(mailbox_id, ''),
		       charge_percentage, charge_fixed, charges_exempt, charges_paid_by_customer
		FROM businesses WHERE id = $1`

	var (
		b         models.Business
		pct, flat decimal.NullDecimal
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.WebhookURL, &b.MailboxID, &pct, &flat, &b.ChargesExempt, &b.ChargesPaidByCustomer,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("get business", err)
	}
	b.ChargePercentage = decimalPtr(pct)
	b.ChargeFixed = decimalPtr(flat)

	const websites = `
		SELECT webhook_url FROM business_websites
		WHERE business_id = $1 AND is_approved = TRUE AND COALESCE(webhook_url, '') <> ''
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, websites, id)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list business websites", err)
	}
	defer rows.Close()
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, errors.NewDatabaseQueryFailedError("scan business website", err)
		}
		b.ApprovedWebsiteWebhook = append(b.ApprovedWebsiteWebhook, url)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("iterate business websites", err)
	}
	return &b, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*models.PaymentRequest, error) {
	var (
		p                          models.PaymentRequest
		status, webhookStatus      string
		businessID, processedEmail sql.NullInt64
		expiresAt, matchedAt       sql.NullTime
		webhookSentAt              sql.NullTime
		received                   decimal.NullDecimal
		pct, flat, total, receives decimal.NullDecimal
		paidByCustomer             bool
		emailData, urlsSent        []byte
	)

	err := row.Scan(
		&p.ID, &p.TransactionID, &p.Amount, &p.PayerName, &p.AccountNumber,
		&status, &businessID, &p.WebhookURL, &expiresAt, &p.CreatedAt,
		&p.MailboxID,
		&matchedAt, &received, &p.PayerAccountNumber, &p.Bank,
		&p.IsMismatch, &p.MismatchReason,
		&pct, &flat, &total, &receives, &paidByCustomer,
		&emailData, &processedEmail,
		&webhookStatus, &p.Webhook.Attempts, &urlsSent, &p.Webhook.LastError, &webhookSentAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = models.PaymentStatus(status)
	p.BusinessID = int64Ptr(businessID)
	p.ExpiresAt = timePtr(expiresAt)
	p.MatchedAt = timePtr(matchedAt)
	p.ReceivedAmount = decimalPtr(received)
	p.ProcessedEmailID = int64Ptr(processedEmail)

	if total.Valid {
		p.Charges = &models.ChargeBreakdown{
			Percentage:       pct.Decimal,
			Fixed:            flat.Decimal,
			Total:            total.Decimal,
			BusinessReceives: receives.Decimal,
			PaidByCustomer:   paidByCustomer,
		}
	}
	if len(emailData) > 0 {
		if err := json.Unmarshal(emailData, &p.EmailData); err != nil {
			return nil, fmt.Errorf("decode email_data: %w", err)
		}
	}

	p.Webhook.Status = models.WebhookStatus(webhookStatus)
	p.Webhook.SentAt = timePtr(webhookSentAt)
	if len(urlsSent) > 0 {
		if err := json.Unmarshal(urlsSent, &p.Webhook.URLsSent); err != nil {
			return nil, fmt.Errorf("decode webhook_urls_sent: %w", err)
		}
	}
	return &p, nil
}
