// Package auth provides authentication middleware for the HTTP API: a static
// API key or an HS256 bearer token.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the header for API key authentication
	APIKeyHeader = "X-API-Key"

	// principalContextKey is the context key for storing the caller
	principalContextKey contextKey = "principal"
)

// Principal identifies an authenticated caller.
type Principal struct {
	// Subject is the token subject, or "api-key" for key authentication.
	Subject string
	Method  string
}

// Authenticator validates requests. The zero value, and one with neither a
// key nor a token manager, lets every request through.
type Authenticator struct {
	apiKey string
	jwt    *JWTManager
}

// NewAuthenticator creates an authenticator. Either argument may be empty/nil.
func NewAuthenticator(apiKey string, jwt *JWTManager) *Authenticator {
	return &Authenticator{apiKey: apiKey, jwt: jwt}
}

// Enabled reports whether any credential is required.
func (a *Authenticator) Enabled() bool {
	return a != nil && (a.apiKey != "" || a.jwt != nil)
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		principal, reason := a.authenticate(r)
		if principal == nil {
			unauthorized(w, reason)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Principal, string) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		if a.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) != 1 {
			return nil, "invalid API key"
		}
		return &Principal{Subject: "api-key", Method: "api_key"}, ""
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, "missing credentials"
	}
	if a.jwt == nil {
		return nil, "bearer tokens not accepted"
	}
	claims, err := a.jwt.ValidateToken(token)
	if err != nil {
		return nil, err.Error()
	}
	return &Principal{Subject: claims.Subject, Method: "jwt"}, ""
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tourney"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}
