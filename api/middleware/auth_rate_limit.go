package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Auth payloads are tiny; anything larger is not worth buffering to find an email.
const maxRateLimitedBody = 64 << 10

type rateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// AuthRateLimitPolicy throttles one auth surface (login, signup, otp) per
// client IP and per submitted email within a fixed window.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

// NewAuthRateLimitPolicy builds a policy. A zero limit disables that dimension.
func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

func (p AuthRateLimitPolicy) retryAfterSeconds() int {
	return max(1, int(p.window.Round(time.Second).Seconds()))
}

// counter is one fixed-window bucket a request is charged against.
type counter struct {
	scope   string
	subject string
	limit   int
}

func (c counter) scopeKey(policy string) string {
	return policy + ":" + c.scope + ":" + c.subject
}

// counters lists the buckets r is charged against. Reading the email
// consumes the body, so it is replaced with a buffered copy.
func (p AuthRateLimitPolicy) counters(r *http.Request) ([]counter, error) {
	out := make([]counter, 0, 2)
	if ip := clientIP(r); p.ipLimit > 0 && ip != "" {
		out = append(out, counter{scope: "ip", subject: ip, limit: p.ipLimit})
	}
	if p.emailLimit <= 0 {
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitedBody+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read request body")
	}
	if len(body) > maxRateLimitedBody {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if email := extractEmail(body); email != "" {
		out = append(out, counter{scope: "email", subject: hashValue(email), limit: p.emailLimit})
	}
	return out, nil
}

// AuthRateLimit rejects requests with 429 and a Retry-After header once any
// counter exceeds its limit. Counter failures surface as dependency errors.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			counters, err := policy.counters(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			for _, c := range counters {
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(c.scopeKey(policy.name)), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if count > int64(c.limit) {
					rejectRateLimited(ctx, logg, w, policy, c, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, c counter, count int64) {
	retryAfter := policy.retryAfterSeconds()
	logg.Warn(logg.WithFields(ctx, map[string]any{
		"policy":         policy.name,
		"scope":          c.scope,
		"subject":        c.subject,
		"attempts":       count,
		"limit":          c.limit,
		"window_seconds": retryAfter,
	}), "auth rate limit exceeded")

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later").
		WithDetails(map[string]any{"retry_after_seconds": retryAfter}))
}

// clientIP prefers the first parseable X-Forwarded-For hop, then X-Real-IP,
// then the socket peer.
func clientIP(r *http.Request) string {
	for part := range strings.SplitSeq(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
