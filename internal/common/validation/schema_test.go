// internal/common/validation/schema_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_PaymentRequest(t *testing.T) {
	tests := []struct {
		name           string
		document       map[string]interface{}
		validateOutput func(t *testing.T, r *ValidationResult)
	}{
		{
			name: "minimal valid request",
			document: map[string]interface{}{
				"transaction_id": "TXN-1",
				"amount":         5000.0,
			},
			validateOutput: func(t *testing.T, r *ValidationResult) {
				assert.True(t, r.Valid)
				assert.Empty(t, r.Errors)
			},
		},
		{
			name: "full valid request",
			document: map[string]interface{}{
				"transaction_id": "TXN-2",
				"amount":         1500.5,
				"payer_name":     "John Doe",
				"account_number": "0123456789",
				"business_id":    7,
				"webhook_url":    "https://shop.example.com/hook",
				"expires_at":     "2025-03-01T12:00:00Z",
			},
			validateOutput: func(t *testing.T, r *ValidationResult) {
				assert.True(t, r.Valid, r.GetErrorMessages())
			},
		},
		{
			name: "missing amount",
			document: map[string]interface{}{
				"transaction_id": "TXN-3",
			},
			validateOutput: func(t *testing.T, r *ValidationResult) {
				assert.False(t, r.Valid)
				assert.True(t, r.HasErrors("amount"))
			},
		},
		{
			name: "zero amount",
			document: map[string]interface{}{
				"transaction_id": "TXN-4",
				"amount":         0,
			},
			validateOutput: func(t *testing.T, r *ValidationResult) {
				assert.False(t, r.Valid)
				assert.True(t, r.HasErrors("amount"))
			},
		},
		{
			name: "non-numeric account number",
			document: map[string]interface{}{
				"transaction_id": "TXN-5",
				"amount":         10,
				"account_number": "ABC",
			},
			validateOutput: func(t *testing.T, r *ValidationResult) {
				assert.False(t, r.Valid)
				assert.True(t, r.HasErrors("account_number"))
			},
		},
		{
			name: "unknown field",
			document: map[string]interface{}{
				"transaction_id": "TXN-6",
				"amount":         10,
				"status":         "approved",
			},
			validateOutput: func(t *testing.T, r *ValidationResult) {
				assert.False(t, r.Valid)
				assert.NotEmpty(t, r.GetErrorMessages())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Validate(PaymentRequestSchema, tt.document)
			require.NoError(t, err)
			tt.validateOutput(t, r)
		})
	}
}

func TestValidate_ExtractRequest(t *testing.T) {
	r, err := Validate(ExtractRequestSchema, map[string]interface{}{"subject": "hi"})
	require.NoError(t, err)
	assert.False(t, r.Valid)

	r, err = Validate(ExtractRequestSchema, map[string]interface{}{"html_body": "<p>x</p>"})
	require.NoError(t, err)
	assert.True(t, r.Valid)
}

func TestValidate_BrokenSchema(t *testing.T) {
	_, err := Validate(`{"type": 12}`, map[string]interface{}{})
	assert.Error(t, err)
}
