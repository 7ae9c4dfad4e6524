package otp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	pqotp "github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// RFC 6238 parameters. These must stay in lockstep with the
	// provisioning URI; any deviation breaks authenticator apps.
	DefaultDigits     = 6
	DefaultPeriod     = 30 * time.Second
	DefaultSecretLen  = 20 // 160 bits, RFC 4226 recommendation
	DefaultSkewWindow = 1  // ±1 step tolerates ~30s drift each direction
)

var (
	ErrInvalidSecret = errors.New("secret is not valid base32")
	ErrSecretTooLong = errors.New("secret length out of range")
)

// Engine derives and verifies time-based one-time passwords and issues
// provisioning material for authenticator apps.
type Engine struct {
	issuer string
	period time.Duration
	digits int
}

// NewEngine creates a TOTP engine for the given issuer using the RFC 6238
// standard parameters (SHA1, 6 digits, 30-second period).
func NewEngine(issuer string) *Engine {
	return &Engine{
		issuer: issuer,
		period: DefaultPeriod,
		digits: DefaultDigits,
	}
}

// GenerateSecret produces a cryptographically random secret of byteLength
// bytes, Base32-encoded without padding. Pass 0 for the default length.
func (e *Engine) GenerateSecret(byteLength int) (string, error) {
	if byteLength == 0 {
		byteLength = DefaultSecretLen
	}
	if byteLength < 10 || byteLength > 64 {
		return "", ErrSecretTooLong
	}

	raw := make([]byte, byteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	return EncodeSecret(raw), nil
}

// DeriveCode computes the code for the time step containing t, shifted by
// stepOffset steps. For a fixed secret and counter the result is stable.
func (e *Engine) DeriveCode(secret string, t time.Time, stepOffset int) string {
	counter := t.Unix()/int64(e.period.Seconds()) + int64(stepOffset)
	return hotp(DecodeSecret(secret), uint64(counter), e.digits)
}

// VerifyCode checks candidate against every step in [-window, +window]
// around t, returning true on the first match. Whitespace in the candidate
// is ignored. The code is not replay-safe within its step window; callers
// needing strict replay protection must track the last accepted step.
func (e *Engine) VerifyCode(secret, candidate string, t time.Time, window int) bool {
	candidate = strings.ReplaceAll(strings.TrimSpace(candidate), " ", "")
	if len(candidate) != e.digits {
		return false
	}

	for offset := -window; offset <= window; offset++ {
		if e.DeriveCode(secret, t, offset) == candidate {
			return true
		}
	}
	return false
}

// ProvisioningURI builds the otpauth:// URI for the secret and account
// label, embedding issuer, algorithm, digits, and period so standard
// authenticator apps enroll with the same parameters DeriveCode uses.
func (e *Engine) ProvisioningURI(accountName, secret string) (string, error) {
	raw, err := DecodeSecretStrict(secret)
	if err != nil {
		return "", err
	}

	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName,
		Secret:      raw,
		Period:      uint(e.period.Seconds()),
		Digits:      pqotp.DigitsSix,
		Algorithm:   pqotp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build provisioning key: %w", err)
	}

	return key.URL(), nil
}

// QRCodeDataURL renders the provisioning URI as a PNG data URL suitable
// for inline display during enrollment.
func (e *Engine) QRCodeDataURL(provisioningURI string) (string, error) {
	qr, err := qrcode.New(provisioningURI, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
