package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy is the set of browser origins allowed to open a socket or
// call the API with credentials.
type OriginPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
	logger   *slog.Logger
}

// NewOriginPolicy normalizes origins to scheme://host. "*" allows any origin;
// unparsable entries are logged and skipped.
func NewOriginPolicy(origins []string, logger *slog.Logger) OriginPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	policy := OriginPolicy{allowed: make(map[string]struct{}), logger: logger}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			policy.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		policy.allowed[normalized] = struct{}{}
	}
	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// Allowed reports whether origin may connect. A missing origin is rejected
// unless every origin is allowed.
func (p OriginPolicy) Allowed(origin string) bool {
	if p.allowAll {
		return true
	}
	if origin == "" {
		return false
	}
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	_, exists := p.allowed[normalized]
	return exists
}

// AllowAll reports whether the policy accepts any origin.
func (p OriginPolicy) AllowAll() bool {
	return p.allowAll
}

// CheckOrigin has the websocket.Upgrader CheckOrigin signature.
func (p OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if p.Allowed(origin) {
		return true
	}
	if p.logger != nil {
		p.logger.Warn("blocked websocket connection from disallowed origin", "origin", origin)
	}
	return false
}
