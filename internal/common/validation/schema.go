// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// PaymentRequestSchema describes the body of POST /api/v1/payment-requests.
const PaymentRequestSchema = `{
  "type": "object",
  "required": ["transaction_id", "amount"],
  "additionalProperties": false,
  "properties": {
    "transaction_id": {"type": "string", "minLength": 1, "maxLength": 128},
    "amount":         {"type": "number", "exclusiveMinimum": 0},
    "payer_name":     {"type": "string", "maxLength": 255},
    "account_number": {"type": "string", "pattern": "^[0-9]{6,20}$"},
    "business_id":    {"type": "integer", "minimum": 1},
    "webhook_url":    {"type": "string", "format": "uri"},
    "expires_at":     {"type": "string", "format": "date-time"}
  }
}`

// ExtractRequestSchema describes the body of POST /api/v1/extract.
const ExtractRequestSchema = `{
  "type": "object",
  "anyOf": [
    {"required": ["text_body"]},
    {"required": ["html_body"]}
  ],
  "properties": {
    "subject":    {"type": "string"},
    "from_email": {"type": "string"},
    "from_name":  {"type": "string"},
    "text_body":  {"type": "string"},
    "html_body":  {"type": "string"}
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validate checks a decoded JSON document against a schema string.
// A broken schema is reported as an error, never as an invalid document.
func Validate(schemaJSON string, document interface{}) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	documentLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldName(desc),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// gojsonschema reports missing properties against the parent object.
func fieldName(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			if field == gojsonschema.STRING_CONTEXT_ROOT || field == "" {
				return prop
			}
			return field + "." + prop
		}
	}
	return field
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
