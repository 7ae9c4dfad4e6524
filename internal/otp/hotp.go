package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math"
)

// hotp implements the RFC 4226 HMAC-based one-time password algorithm:
// the counter is serialized as an 8-byte big-endian integer, hashed with
// HMAC-SHA1, and reduced through dynamic truncation to a numeric code.
func hotp(key []byte, counter uint64, digits int) string {
	counterBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(counterBytes, counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes)
	sum := mac.Sum(nil)

	// Dynamic truncation: low nibble of the last byte selects a 4-byte
	// window; the top bit is masked to keep the value positive.
	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset]&0x7f) << 24) |
		(uint32(sum[offset+1]) << 16) |
		(uint32(sum[offset+2]) << 8) |
		uint32(sum[offset+3])

	code %= uint32(math.Pow10(digits))

	return fmt.Sprintf("%0*d", digits, code)
}
