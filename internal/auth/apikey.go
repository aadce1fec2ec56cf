// Package auth provides a simple API key authentication scheme.
package auth

import "strings"

// APIKeyAuth validates requests against a fixed set of keys. An empty set
// means authentication is disabled (useful for local development).
type APIKeyAuth struct {
	validKeys map[string]struct{}
}

// NewAPIKeyAuth creates a new API key authenticator.
func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	validKeys := make(map[string]struct{})
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key != "" {
			validKeys[key] = struct{}{}
		}
	}

	return &APIKeyAuth{validKeys: validKeys}
}

// Enabled reports whether any keys are configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.validKeys) > 0
}

// IsValidKey checks if a key is valid. Always true when auth is disabled.
func (a *APIKeyAuth) IsValidKey(key string) bool {
	if !a.Enabled() {
		return true
	}
	_, valid := a.validKeys[key]
	return valid
}
