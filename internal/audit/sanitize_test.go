package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowaudit/pkg/fields"
)

func TestSanitizeFields_RedactsSensitiveKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"password", "password"},
		{"password prefix", "password_hash"},
		{"ssn", "ssn"},
		{"credit card", "credit_card_number"},
		{"bank account", "bank_account"},
		{"api key", "stripe_api_key"},
		{"token", "refresh_token"},
		{"secret", "client_secret"},
		{"mixed case", "Password"},
		{"upper case", "API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := fields.Map{tt.key: fields.String("sensitive-value")}
			out := sanitizeFields(in)

			got, ok := out[tt.key].AsString()
			require.True(t, ok)
			assert.Equal(t, RedactionMarker, got)
		})
	}
}

func TestSanitizeFields_LeavesOtherKeysAlone(t *testing.T) {
	in := fields.Map{
		"email":  fields.String("jo@example.com"),
		"amount": fields.Number(150),
	}
	out := sanitizeFields(in)

	email, _ := out["email"].AsString()
	assert.Equal(t, "jo@example.com", email)
	amount, _ := out["amount"].AsNumber()
	assert.Equal(t, 150.0, amount)
}

func TestSanitizeFields_RecursesIntoNestedMaps(t *testing.T) {
	in := fields.Map{
		"billing": fields.Nested(fields.Map{
			"credit_card": fields.String("4111111111111111"),
			"city":        fields.String("Spokane"),
		}),
	}
	out := sanitizeFields(in)

	billing, ok := out["billing"].AsMap()
	require.True(t, ok)
	card, _ := billing["credit_card"].AsString()
	assert.Equal(t, RedactionMarker, card)
	city, _ := billing["city"].AsString()
	assert.Equal(t, "Spokane", city)
}

func TestSanitizeFields_RedactsNonStringValues(t *testing.T) {
	in := fields.Map{
		"card_token": fields.Number(12345),
	}
	out := sanitizeFields(in)

	got, ok := out["card_token"].AsString()
	require.True(t, ok)
	assert.Equal(t, RedactionMarker, got)
}

func TestSanitizeFields_DoesNotMutateInput(t *testing.T) {
	in := fields.Map{
		"password": fields.String("hunter2"),
		"profile": fields.Nested(fields.Map{
			"ssn": fields.String("123-45-6789"),
		}),
	}
	_ = sanitizeFields(in)

	original, _ := in["password"].AsString()
	assert.Equal(t, "hunter2", original)
	profile, _ := in["profile"].AsMap()
	ssn, _ := profile["ssn"].AsString()
	assert.Equal(t, "123-45-6789", ssn)
}

func TestSanitizeFields_NilMap(t *testing.T) {
	assert.Nil(t, sanitizeFields(nil))
}
