// internal/workers/extraction/extract-payment-info/handler_test.go
package extractpaymentinfo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	fullBlock   = "1234567890" + "0987654321" + "500000" + "20260115" + "123456789"
	paddedBlock = "1234567890" + "0987654321" + "500000" + "20260115" + "12345678"
)

type fakeTemplates struct {
	templates []models.BankTemplate
	err       error
	calls     int
}

func (f *fakeTemplates) ListActive(ctx context.Context) ([]models.BankTemplate, error) {
	f.calls++
	return f.templates, f.err
}

func createTestHandler(t *testing.T, cfg *Config, templates TemplateSource, opts ...Option) *Handler {
	if cfg == nil {
		cfg = LoadConfig()
	}
	h, err := NewHandler(cfg, templates, logger.NewTestLogger(t), opts...)
	require.NoError(t, err)
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ==========================
// Strategy Chain Tests
// ==========================

func TestHandler_Extract(t *testing.T) {
	gtbank := models.BankTemplate{
		ID:                      1,
		BankName:                "GTBank",
		SenderDomain:            "gtbank.com",
		IsActive:                true,
		AmountFieldLabel:        "Amount",
		SenderNameFieldLabel:    "Sender Name",
		AccountNumberFieldLabel: "Account Number",
	}

	tests := []struct {
		name           string
		templates      []models.BankTemplate
		email          *models.InboundEmail
		validateOutput func(t *testing.T, r *Result)
	}{
		{
			name: "43-digit description block",
			email: &models.InboundEmail{
				FromEmail: "alerts@bank.example",
				TextBody:  "Description : " + fullBlock + " FROM JOHN DOE TO ACME",
			},
			validateOutput: func(t *testing.T, r *Result) {
				require.True(t, r.Success)
				assert.Equal(t, StrategyFixedWidth, r.Method)
				assert.True(t, dec("5000").Equal(r.Data.Amount))
				assert.Equal(t, "1234567890", r.Data.AccountNumber)
				assert.Equal(t, "0987654321", r.Data.PayerAccountNumber)
				assert.Equal(t, "123456789", r.Data.Reference)
				assert.Equal(t, "JOHN DOE", r.Data.SenderName)
				require.NotNil(t, r.Data.TransactionDate)
				assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), *r.Data.TransactionDate)
			},
		},
		{
			name: "42-digit block is padded",
			email: &models.InboundEmail{
				TextBody: "Description: " + paddedBlock,
			},
			validateOutput: func(t *testing.T, r *Result) {
				require.True(t, r.Success)
				assert.Equal(t, StrategyFixedWidth, r.Method)
				assert.Equal(t, "123456780", r.Data.Reference)
				assert.True(t, dec("5000").Equal(r.Data.Amount))
				assert.Contains(t, r.Diagnostics.Steps, "fixed_width: padded 42-digit block")
			},
		},
		{
			name: "currency prefixed amount",
			email: &models.InboundEmail{
				Subject:  "Credit Alert",
				TextBody: "Amount: NGN 25,000.50 has been credited to your account.",
			},
			validateOutput: func(t *testing.T, r *Result) {
				require.True(t, r.Success)
				assert.Equal(t, StrategyCurrencyPattern, r.Method)
				assert.True(t, dec("25000.50").Equal(r.Data.Amount))
			},
		},
		{
			name: "sender name from 'from NAME to'",
			email: &models.InboundEmail{
				TextBody: "You received NGN 5,000.00 from JOHN ADEBAYO to ACME STORES",
			},
			validateOutput: func(t *testing.T, r *Result) {
				require.True(t, r.Success)
				assert.True(t, dec("5000").Equal(r.Data.Amount))
				assert.Equal(t, "JOHN ADEBAYO", r.Data.SenderName)
			},
		},
		{
			name:      "template labels in html table cells",
			templates: []models.BankTemplate{gtbank},
			email: &models.InboundEmail{
				FromEmail: "alerts@gtbank.com",
				HTMLBody: `<html><body><table>
					<tr><td>Account Number</td><td>0123456789</td></tr>
					<tr><td>Amount</td><td>NGN 15,000.00</td></tr>
					<tr><td>Sender Name</td><td>Jane Roe</td></tr>
				</table></body></html>`,
			},
			validateOutput: func(t *testing.T, r *Result) {
				require.True(t, r.Success)
				assert.Equal(t, StrategyTemplate, r.Method)
				assert.True(t, dec("15000").Equal(r.Data.Amount))
				assert.Equal(t, "Jane Roe", r.Data.SenderName)
				assert.Equal(t, "0123456789", r.Data.AccountNumber)
				assert.Equal(t, "GTBank", r.Data.Bank)
			},
		},
		{
			name: "higher priority domain template beats exact sender template",
			templates: []models.BankTemplate{
				{BankName: "Exact", SenderEmail: "alerts@bank.com", Priority: 1, IsActive: true, AmountFieldLabel: "Amount"},
				{BankName: "Domain", SenderDomain: "bank.com", Priority: 10, IsActive: true, AmountPattern: `Total:\s*([\d,.]+)`},
			},
			email: &models.InboundEmail{
				FromEmail: "alerts@bank.com",
				TextBody:  "Amount: 300\nTotal: 900",
			},
			validateOutput: func(t *testing.T, r *Result) {
				require.True(t, r.Success)
				assert.Equal(t, "Domain", r.Data.Bank)
				assert.True(t, dec("900").Equal(r.Data.Amount))
			},
		},
		{
			name: "exact sender breaks a priority tie",
			templates: []models.BankTemplate{
				{BankName: "Domain", SenderDomain: "bank.com", Priority: 5, IsActive: true, AmountPattern: `Total:\s*([\d,.]+)`},
				{BankName: "Exact", SenderEmail: "alerts@bank.com", Priority: 5, IsActive: true, AmountFieldLabel: "Amount"},
			},
			email: &models.InboundEmail{
				FromEmail: "alerts@bank.com",
				TextBody:  "Amount: 300\nTotal: 900",
			},
			validateOutput: func(t *testing.T, r *Result) {
				require.True(t, r.Success)
				assert.Equal(t, "Exact", r.Data.Bank)
				assert.True(t, dec("300").Equal(r.Data.Amount))
			},
		},
		{
			name:      "template amount below minimum falls through",
			templates: []models.BankTemplate{gtbank},
			email: &models.InboundEmail{
				FromEmail: "alerts@gtbank.com",
				TextBody:  "Amount: NGN 5.00",
			},
			validateOutput: func(t *testing.T, r *Result) {
				require.True(t, r.Success)
				assert.Equal(t, StrategyCurrencyPattern, r.Method)
				assert.True(t, dec("5").Equal(r.Data.Amount))
			},
		},
		{
			name: "amount at or above ceiling is rejected",
			email: &models.InboundEmail{
				TextBody: "Amount: NGN 2,000,000,000",
			},
			validateOutput: func(t *testing.T, r *Result) {
				assert.False(t, r.Success)
				assert.Nil(t, r.Data)
				assert.Contains(t, r.Diagnostics.Errors, "no strategy produced an amount")
			},
		},
		{
			name: "failure keeps diagnostics",
			email: &models.InboundEmail{
				TextBody: "Hello there",
			},
			validateOutput: func(t *testing.T, r *Result) {
				assert.False(t, r.Success)
				assert.Empty(t, r.Method)
				assert.Equal(t, 11, r.Diagnostics.TextLength)
				assert.Equal(t, "Hello there", r.Diagnostics.TextPreview)
				assert.Contains(t, r.Diagnostics.Errors, "fixed_width: no 42/43-digit block")
				assert.Contains(t, r.Diagnostics.Steps, "try "+StrategyCurrencyPattern)
			},
		},
		{
			name:  "empty email",
			email: &models.InboundEmail{Subject: "nothing"},
			validateOutput: func(t *testing.T, r *Result) {
				assert.False(t, r.Success)
				assert.Contains(t, r.Diagnostics.Errors, "email has no text or html body")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, nil, &fakeTemplates{templates: tt.templates})
			r := h.Extract(context.Background(), tt.email)
			require.NotNil(t, r)
			tt.validateOutput(t, r)
		})
	}
}

func TestHandler_WithStrategiesOverridesOrder(t *testing.T) {
	email := &models.InboundEmail{
		TextBody: "Description : " + fullBlock + "\nAmount: NGN 100.00",
	}

	def := createTestHandler(t, nil, nil)
	r := def.Extract(context.Background(), email)
	require.True(t, r.Success)
	assert.Equal(t, StrategyFixedWidth, r.Method)

	currency, err := NewStrategy(LoadConfig(), StrategyCurrencyPattern)
	require.NoError(t, err)

	h := createTestHandler(t, nil, nil, WithStrategies(currency))
	r = h.Extract(context.Background(), email)
	require.True(t, r.Success)
	assert.Equal(t, StrategyCurrencyPattern, r.Method)
	assert.True(t, dec("100").Equal(r.Data.Amount))
}

func TestNewHandler_UnknownStrategy(t *testing.T) {
	cfg := LoadConfig()
	cfg.Strategies = []string{StrategyTemplate, "ocr"}

	_, err := NewHandler(cfg, nil, logger.NewNoOpLogger())
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = NewStrategy(cfg, "ocr")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

// ==========================
// Template Cache Tests
// ==========================

func TestHandler_TemplateCache(t *testing.T) {
	source := &fakeTemplates{}
	h := createTestHandler(t, nil, source)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	email := &models.InboundEmail{TextBody: "NGN 500"}

	h.Extract(context.Background(), email)
	h.Extract(context.Background(), email)
	assert.Equal(t, 1, source.calls)

	now = now.Add(2 * time.Minute)
	h.Extract(context.Background(), email)
	assert.Equal(t, 2, source.calls)

	h.InvalidateTemplates()
	h.Extract(context.Background(), email)
	assert.Equal(t, 3, source.calls)
}

func TestHandler_TemplateLoadErrorIsNotFatal(t *testing.T) {
	source := &fakeTemplates{err: errors.New("connection refused")}
	h := createTestHandler(t, nil, source)

	r := h.Extract(context.Background(), &models.InboundEmail{TextBody: "Amount: NGN 1,500"})
	require.True(t, r.Success)
	assert.Equal(t, StrategyCurrencyPattern, r.Method)
	assert.Contains(t, r.Diagnostics.Errors, "load bank templates: connection refused")
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	h := createTestHandler(t, nil, nil)

	t.Run("success", func(t *testing.T) {
		out, err := h.Execute(context.Background(), &Input{TextBody: "Amount: NGN 7,250.00"})
		require.NoError(t, err)
		assert.Equal(t, StrategyCurrencyPattern, out.Method)
		assert.True(t, dec("7250").Equal(out.Data.Amount))
		assert.Nil(t, out.Diagnostics)
	})

	t.Run("failure returns diagnostics", func(t *testing.T) {
		out, err := h.Execute(context.Background(), &Input{HTMLBody: "<p>nothing here</p>"})
		assert.ErrorIs(t, err, ErrExtractionFailed)
		require.NotNil(t, out)
		require.NotNil(t, out.Diagnostics)
		assert.Nil(t, out.Data)
		assert.Equal(t, "<p>nothing here</p>", out.Diagnostics.HTMLPreview)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := h.Execute(context.Background(), &Input{Subject: "hi"})
		assert.ErrorIs(t, err, ErrEmptyEmail)
	})
}

// ==========================
// Helper Tests
// ==========================

func TestDecodeFixedWidth(t *testing.T) {
	data, ok := decodeFixedWidth(fullBlock)
	require.True(t, ok)
	assert.Equal(t, "1234567890", data.AccountNumber)
	assert.True(t, dec("5000").Equal(data.Amount))

	_, ok = decodeFixedWidth("12345")
	assert.False(t, ok)

	bad := "1234567890" + "0987654321" + "500000" + "20261399" + "123456789"
	data, ok = decodeFixedWidth(bad)
	require.True(t, ok)
	assert.Nil(t, data.TransactionDate)
}

func TestFixedWidthBlocks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{name: "single block", body: "Desc: " + fullBlock + " end", want: []string{fullBlock}},
		{name: "blocks one character apart", body: fullBlock + "/" + paddedBlock, want: []string{fullBlock, paddedBlock}},
		{name: "block at both edges", body: paddedBlock, want: []string{paddedBlock}},
		{name: "longer digit run is ignored", body: "x" + fullBlock + "12 y", want: nil},
		{name: "short run", body: "12345", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fixedWidthBlocks(tt.body))
		})
	}
}

func TestParseHTML_SkipsScriptsAndCollectsRows(t *testing.T) {
	text, rows := parseHTML(`<html><head><style>td{}</style></head><body>
		<script>var amount = "NGN 1";</script>
		<p>Credit   Alert</p>
		<table><tr><th>Field</th><th>Value</th></tr><tr><td>Amount</td><td>NGN&nbsp;2,000</td></tr></table>
	</body></html>`)

	assert.NotContains(t, text, "var amount")
	assert.Contains(t, text, "Credit Alert")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Amount", "NGN 2,000"}, rows[1])
}

func TestDocument_LookupLabel(t *testing.T) {
	doc := newDocument(&models.InboundEmail{
		TextBody: "Sender:  ADA LOVELACE\nRef: 991",
		HTMLBody: "<table><tr><td>Narration: school fees</td></tr></table>",
	}, nil)

	v, ok := doc.LookupLabel("sender")
	require.True(t, ok)
	assert.Equal(t, "ADA LOVELACE", v)

	v, ok = doc.LookupLabel("Narration:")
	require.True(t, ok)
	assert.Equal(t, "school fees", v)

	_, ok = doc.LookupLabel("Balance")
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"NGN 1,234,567.89", "1234567.89", true},
		{"₦500", "500", true},
		{", 42", "42", true},
		{"none", "0", false},
	}
	for _, tt := range tests {
		got, ok := parseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.True(t, dec(tt.want).Equal(got), tt.in)
	}
}
