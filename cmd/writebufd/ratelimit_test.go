package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestIPRateLimiter_AllowsBurstThenDenies(t *testing.T) {
	t.Parallel()

	rl := newIPRateLimiter(rate.Limit(1), 3)

	for i := 0; i < 3; i++ {
		ok, _ := rl.allow("192.0.2.1")
		require.True(t, ok, "request %d should be within burst", i+1)
	}

	ok, retryAfter := rl.allow("192.0.2.1")
	require.False(t, ok)
	require.Greater(t, retryAfter, time.Duration(0))

	ok, _ = rl.allow("192.0.2.2")
	require.True(t, ok, "a different IP has its own bucket")
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	t.Parallel()

	rl := newIPRateLimiter(rate.Limit(1), 1)
	handler := rateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.1:12345"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestClientIP_StripsPortAndFallsBackToRemoteAddr(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.7:55555"
	require.Equal(t, "192.0.2.7", clientIP(req))

	req.RemoteAddr = "no-port-here"
	require.Equal(t, "no-port-here", clientIP(req))
}
