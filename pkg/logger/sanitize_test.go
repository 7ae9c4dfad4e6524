package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"typical address", "maria@example.com", "m****@e******.com"},
		{"single char local", "a@example.com", "a@e******.com"},
		{"no dot in domain", "user@localhost", "u***@l********"},
		{"missing at sign", "not-an-email", "[invalid-email]"},
		{"empty string", "", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizedEmail(tt.email))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.False(t, SanitizeQueryString(""))
	assert.False(t, SanitizeQueryString("page=2&limit=50"))
	assert.True(t, SanitizeQueryString("reset_token=abc123"))
	assert.True(t, SanitizeQueryString("Email=maria%40example.com"))
	assert.True(t, SanitizeQueryString("api_key=xyz"))
}
