package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stallmarket/bastion/internal/access"
)

func TestRateLimitByActor_BlocksAfterLimit(t *testing.T) {
	limiter := RateLimitByActor(RateLimitConfig{RequestsPerMinute: 3})
	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest("POST", "/mfa/verify", nil)
		req = req.WithContext(access.WithActor(req.Context(), access.ResolvedActor("user123", access.RoleUser)))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		last = w.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestRateLimitByActor_SeparateActorsSeparateBudgets(t *testing.T) {
	limiter := RateLimitByActor(RateLimitConfig{RequestsPerMinute: 1})
	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/mfa/verify", nil)
		userID := fmt.Sprintf("user%d", i)
		req = req.WithContext(access.WithActor(req.Context(), access.ResolvedActor(userID, access.RoleUser)))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "each actor gets its own budget")
	}
}

func TestRateLimitByIP_BlocksAfterLimit(t *testing.T) {
	limiter := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 2})
	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/mfa/verify", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		last = w.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}
