// Package auth applies provider credentials to outgoing HTTP requests.
package auth

import (
	"net/http"
	"sync"
)

// Authenticator defines the interface for applying authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// HeaderAuth represents authentication via custom HTTP headers.
type HeaderAuth struct {
	Headers map[string]string
}

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	// BasicAuthType represents HTTP Basic Authentication.
	BasicAuthType Type = "basic"
	// HeaderAuthType represents custom header-based authentication.
	HeaderAuthType Type = "header"
	// BearerAuthType represents Bearer token authentication.
	BearerAuthType Type = "bearer"
)

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns the authentication type (BasicAuthType).
func (b BasicAuth) Type() Type { return BasicAuthType }

// Apply adds custom headers to the HTTP request.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns the authentication type (HeaderAuthType).
func (h HeaderAuth) Type() Type { return HeaderAuthType }

// Apply adds a Bearer token to the Authorization header of the HTTP request.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns the authentication type (BearerAuthType).
func (b BearerAuth) Type() Type { return BearerAuthType }

// TokenAuth is a bearer authenticator whose token is replaced when a provider
// refreshes its credentials. It is safe for concurrent use.
type TokenAuth struct {
	mu    sync.RWMutex
	token string
}

// NewTokenAuth creates a TokenAuth holding an initial token, which may be empty.
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

// Apply sets the current token as a Bearer Authorization header. No header is
// set while the token is empty.
func (t *TokenAuth) Apply(req *http.Request) error {
	token := t.Token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// Type returns BearerAuthType.
func (t *TokenAuth) Type() Type { return BearerAuthType }

// Token returns the current token.
func (t *TokenAuth) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// SetToken replaces the current token.
func (t *TokenAuth) SetToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}
