package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupLimiter(t *testing.T, limit int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, limit, testLogger()), mr
}

func limited(rl *RateLimiter) http.Handler {
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl, _ := setupLimiter(t, 5)
	h := limited(rl)

	for i := 0; i < 5; i++ {
		if code := hit(h, "10.0.0.1:1234"); code != http.StatusOK {
			t.Errorf("request %d returned %d, want 200", i+1, code)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl, _ := setupLimiter(t, 3)
	h := limited(rl)

	for i := 0; i < 3; i++ {
		hit(h, "10.0.0.1:1234")
	}

	if code := hit(h, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("request over the limit returned %d, want 429", code)
	}
}

func TestRateLimiter_IsolatesClients(t *testing.T) {
	rl, _ := setupLimiter(t, 2)
	h := limited(rl)

	for i := 0; i < 2; i++ {
		hit(h, "10.0.0.1:1234")
	}

	if code := hit(h, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("first client should be blocked, got %d", code)
	}
	if code := hit(h, "10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("second client should be allowed, got %d", code)
	}
}

func TestRateLimiter_ZeroLimitDisablesLimiting(t *testing.T) {
	rl, _ := setupLimiter(t, 0)
	h := limited(rl)

	for i := 0; i < 50; i++ {
		if code := hit(h, "10.0.0.1:1234"); code != http.StatusOK {
			t.Errorf("request %d returned %d with limiting disabled", i+1, code)
		}
	}
}

func TestRateLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	rl, mr := setupLimiter(t, 1)
	h := limited(rl)
	mr.Close()

	// Management traffic keeps flowing if Redis is unavailable.
	for i := 0; i < 3; i++ {
		if code := hit(h, "10.0.0.1:1234"); code != http.StatusOK {
			t.Errorf("request %d returned %d, want fail-open 200", i+1, code)
		}
	}
}
