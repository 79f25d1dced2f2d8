package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func TestAuthRateLimitLimits(t *testing.T) {
	cases := []struct {
		name     string
		policy   AuthRateLimitPolicy
		body     func(i int) string
		remote   func(i int) string
		requests int
		allowed  int
	}{
		{
			name:     "email limit across ips",
			policy:   NewAuthRateLimitPolicy("login", time.Minute, 0, 2),
			body:     func(int) string { return `{"email":"Blocked@example.com","password":"secret"}` },
			remote:   func(i int) string { return "10.0.0." + string(rune('1'+i)) + ":5678" },
			requests: 3,
			allowed:  2,
		},
		{
			name:     "ip limit across emails",
			policy:   NewAuthRateLimitPolicy("signup", time.Minute, 1, 0),
			body:     func(i int) string { return `{"email":"user` + string(rune('a'+i)) + `@example.com"}` },
			remote:   func(int) string { return "5.6.7.8:1234" },
			requests: 2,
			allowed:  1,
		},
		{
			name:     "disabled policy",
			policy:   NewAuthRateLimitPolicy("login", 0, 1, 1),
			body:     func(int) string { return `{"email":"a@example.com"}` },
			remote:   func(int) string { return "5.6.7.8:1234" },
			requests: 4,
			allowed:  4,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := AuthRateLimit(tc.policy, newFakeRateStore(), nil)(okHandler())
			for i := range tc.requests {
				req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body(i)))
				req.RemoteAddr = tc.remote(i)
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)

				if i < tc.allowed {
					require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
					continue
				}
				require.Equal(t, http.StatusTooManyRequests, rec.Code, "request %d", i)
				var payload struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
				require.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
			}
		})
	}
}

func TestAuthRateLimitPreservesBody(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 2, 2)
	handler := AuthRateLimit(policy, newFakeRateStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `"email":"tester@example.com"`)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"tester@example.com","password":"secret"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitSetsRetryAfter(t *testing.T) {
	store := newFakeRateStore()
	policy := NewAuthRateLimitPolicy("otp", 90*time.Second, 1, 0)
	handler := AuthRateLimit(policy, store, nil)(okHandler())

	var rec *httptest.ResponseRecorder
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/resend-otp", strings.NewReader(`{"email":"a@example.com"}`))
		req.Header.Set("X-Forwarded-For", "garbage, 203.0.113.9")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "90", rec.Header().Get("Retry-After"))
	require.Contains(t, store.counts, "rl:otp:ip:203.0.113.9")
}

func TestAuthRateLimitRejectsOversizedBody(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 5)
	handler := AuthRateLimit(policy, newFakeRateStore(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))

	body := `{"email":"a@example.com","password":"` + strings.Repeat("x", maxRateLimitedBody) + `"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRateLimitStoreFailure(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 1, 0), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
