package otp

import (
	"encoding/base32"
	"strings"
)

// noPadding is the RFC 4648 Base32 codec (A-Z, 2-7) without padding, the
// encoding authenticator apps expect in otpauth secrets.
var noPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeSecret renders raw secret bytes as an unpadded Base32 string.
func EncodeSecret(raw []byte) string {
	return noPadding.EncodeToString(raw)
}

// DecodeSecret decodes a Base32 secret leniently: lowercase is folded to
// uppercase and characters outside the RFC 4648 alphabet (spaces, hyphens,
// stray padding) are stripped before decoding. Users paste secrets with
// formatting; a corrupted secret therefore produces wrong codes rather
// than an error. Use DecodeSecretStrict to fail fast instead.
func DecodeSecret(secret string) []byte {
	cleaned := sanitize(secret)
	raw, err := noPadding.DecodeString(cleaned)
	if err != nil {
		// Trailing symbols that do not form a full group; drop down to the
		// longest decodable prefix.
		for len(cleaned) > 0 {
			cleaned = cleaned[:len(cleaned)-1]
			if raw, err = noPadding.DecodeString(cleaned); err == nil {
				break
			}
		}
	}
	return raw
}

// DecodeSecretStrict decodes a Base32 secret, rejecting any input that is
// not a well-formed unpadded RFC 4648 string after whitespace trimming.
func DecodeSecretStrict(secret string) ([]byte, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(secret))
	raw, err := noPadding.DecodeString(trimmed)
	if err != nil {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

// sanitize uppercases the input and strips every character outside the
// Base32 alphabet.
func sanitize(secret string) string {
	var b strings.Builder
	b.Grow(len(secret))
	for _, r := range strings.ToUpper(secret) {
		if (r >= 'A' && r <= 'Z') || (r >= '2' && r <= '7') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
