package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/stallmarket/bastion/pkg/http"
)

func requestFrom(remoteAddr string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestExtractClientIP_DirectConnectionIgnoresHeaders(t *testing.T) {
	// A client dialing us directly can stamp whatever it likes into the
	// forwarding headers; none of it may be believed.
	req := requestFrom("203.0.113.10:54321", map[string]string{
		"X-Forwarded-For": "1.2.3.4, 5.6.7.8",
		"X-Real-IP":       "192.168.1.1",
	})

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "127.0.0.1/32"}}

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxyUsesForwardedFor(t *testing.T) {
	req := requestFrom("10.0.0.5:54321", map[string]string{
		"X-Forwarded-For": "203.0.113.42, 10.0.0.5",
	})

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxyFallsBackToRealIP(t *testing.T) {
	req := requestFrom("10.0.0.5:54321", map[string]string{
		"X-Real-IP": "203.0.113.42",
	})

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_IPv6(t *testing.T) {
	req := requestFrom("[::1]:54321", map[string]string{
		"X-Forwarded-For": "2001:db8::1",
	})

	config := &pkghttp.IPConfig{TrustedProxies: []string{"::1/128"}}

	assert.Equal(t, "2001:db8::1", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_NilConfigTrustsNothing(t *testing.T) {
	req := requestFrom("203.0.113.10:54321", map[string]string{
		"X-Forwarded-For": "1.2.3.4",
	})

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, nil))
}

func TestExtractClientIP_GarbageForwardedForSkipped(t *testing.T) {
	req := requestFrom("10.0.0.5:54321", map[string]string{
		"X-Forwarded-For": "not-an-ip, 203.0.113.42",
	})

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, config))
}
