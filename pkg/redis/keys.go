package redis

import "strings"

const keyNamespace = "sf"

func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey("rate_limit", scope)
}

func (c *Client) AccessSessionKey(accessID string) string {
	return buildKey("session", "access", accessID)
}

// OTPKey lowercases the address so resend and verify agree.
func (c *Client) OTPKey(email string) string {
	return buildKey("otp", strings.ToLower(email))
}

func (c *Client) LockKey(name string) string {
	return buildKey("lock", name)
}

// buildKey joins non-empty parts under the sf: namespace.
func buildKey(parts ...string) string {
	out := make([]string, 0, len(parts)+1)
	out = append(out, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}
