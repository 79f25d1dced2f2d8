package validators

import (
	"net/http"
	"strings"
)

const bearerPrefix = "bearer "

// Credential returns the first non-empty value among the named headers,
// falling back to Authorization with an optional Bearer scheme. The empty
// string means no credential was sent.
func Credential(r *http.Request, headers ...string) string {
	for _, name := range headers {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
	}
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) >= len(bearerPrefix) && strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(raw[len(bearerPrefix):])
	}
	return raw
}
