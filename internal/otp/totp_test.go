package otp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 Appendix B test secret: ASCII "12345678901234567890" in Base32.
const rfcTestSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestEngine_DeriveCode_RFCVectors(t *testing.T) {
	e := NewEngine("Stallmarket")

	// Appendix B vectors at SHA1, truncated to 6 digits.
	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
	}

	for _, tt := range tests {
		got := e.DeriveCode(rfcTestSecret, time.Unix(tt.unix, 0), 0)
		assert.Equal(t, tt.want, got, "at t=%d", tt.unix)
	}
}

func TestEngine_DeriveCode_Deterministic(t *testing.T) {
	e := NewEngine("Stallmarket")
	at := time.Unix(1700000000, 0)

	first := e.DeriveCode("JBSWY3DPEHPK3PXP", at, 0)
	assert.Equal(t, "324550", first)
	assert.Len(t, first, 6)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.DeriveCode("JBSWY3DPEHPK3PXP", at, 0))
	}

	// Any time inside the same 30-second step derives the same code.
	// Steps align to multiples of 30: 1700000000 sits in [1699999980, 1700000010).
	stepStart := time.Unix(1699999980, 0)
	stepEnd := time.Unix(1700000009, 0)
	assert.Equal(t, first, e.DeriveCode("JBSWY3DPEHPK3PXP", stepStart, 0))
	assert.Equal(t, first, e.DeriveCode("JBSWY3DPEHPK3PXP", stepEnd, 0))

	// The next step begins a new counter.
	assert.NotEqual(t, first, e.DeriveCode("JBSWY3DPEHPK3PXP", time.Unix(1700000010, 0), 0))
}

func TestEngine_VerifyCode_WindowTolerance(t *testing.T) {
	e := NewEngine("Stallmarket")
	at := time.Unix(1700000000, 0)
	code := e.DeriveCode("JBSWY3DPEHPK3PXP", at, 0)

	// Accepted one step early and one step late.
	assert.True(t, e.VerifyCode("JBSWY3DPEHPK3PXP", code, at.Add(-30*time.Second), 1))
	assert.True(t, e.VerifyCode("JBSWY3DPEHPK3PXP", code, at.Add(30*time.Second), 1))

	// Rejected two steps away.
	assert.False(t, e.VerifyCode("JBSWY3DPEHPK3PXP", code, at.Add(-60*time.Second), 1))
	assert.False(t, e.VerifyCode("JBSWY3DPEHPK3PXP", code, at.Add(61*time.Second), 1))
}

func TestEngine_VerifyCode_StripsWhitespace(t *testing.T) {
	e := NewEngine("Stallmarket")
	at := time.Unix(1700000000, 0)

	assert.True(t, e.VerifyCode("JBSWY3DPEHPK3PXP", " 324 550 ", at, 1))
	assert.False(t, e.VerifyCode("JBSWY3DPEHPK3PXP", "000000", at, 1))
	assert.False(t, e.VerifyCode("JBSWY3DPEHPK3PXP", "32455", at, 1))
}

func TestEngine_GenerateSecret(t *testing.T) {
	e := NewEngine("Stallmarket")

	secret, err := e.GenerateSecret(0)
	require.NoError(t, err)
	// 20 bytes -> 32 Base32 characters, no padding.
	assert.Len(t, secret, 32)
	assert.NotContains(t, secret, "=")

	other, err := e.GenerateSecret(0)
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)

	_, err = e.GenerateSecret(4)
	assert.ErrorIs(t, err, ErrSecretTooLong)
}

func TestEngine_ProvisioningURI(t *testing.T) {
	e := NewEngine("Stallmarket")

	uri, err := e.ProvisioningURI("seller@example.com", "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
	assert.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")
	assert.Contains(t, uri, "issuer=Stallmarket")
	assert.Contains(t, uri, "algorithm=SHA1")
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
}

func TestEngine_ProvisioningURI_RejectsMalformedSecret(t *testing.T) {
	e := NewEngine("Stallmarket")

	_, err := e.ProvisioningURI("seller@example.com", "not base32!")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestEngine_QRCodeDataURL(t *testing.T) {
	e := NewEngine("Stallmarket")

	uri, err := e.ProvisioningURI("seller@example.com", "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	dataURL, err := e.QRCodeDataURL(uri)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))
}

func TestDecodeSecret_Lenient(t *testing.T) {
	// Formatting noise is stripped; the decoded bytes match the clean form.
	clean := DecodeSecret("JBSWY3DPEHPK3PXP")
	assert.Equal(t, clean, DecodeSecret("jbsw y3dp ehpk 3pxp"))
	assert.Equal(t, clean, DecodeSecret("JBSW-Y3DP-EHPK-3PXP"))
	assert.NotEmpty(t, clean)
}

func TestDecodeSecretStrict(t *testing.T) {
	raw, err := DecodeSecretStrict("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	_, err = DecodeSecretStrict("JBSW Y3DP")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}
