// Package auth guards the HTTP API with static API keys or session tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the header carrying a static API key
	APIKeyHeader = "X-API-Key"

	principalContextKey contextKey = "principal"
)

// Principal identifies the authenticated caller.
type Principal struct {
	// Method is "api_key" or "session".
	Method string
	// SessionID is set for session tokens.
	SessionID string
}

// Authenticator validates API keys and session tokens.
type Authenticator struct {
	apiKeys [][]byte
	jwt     *JWTManager
	logger  *slog.Logger
}

// NewAuthenticator creates an authenticator. jwtManager may be nil to accept
// API keys only.
func NewAuthenticator(apiKeys []string, jwtManager *JWTManager, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{jwt: jwtManager, logger: logger}
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			a.apiKeys = append(a.apiKeys, []byte(k))
		}
	}
	return a
}

// Middleware rejects requests without a valid X-API-Key header or bearer
// session token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, reason := a.authenticate(r)
		if p == nil {
			a.logger.Warn("request rejected", "path", r.URL.Path, "reason", reason)
			unauthorized(w, reason)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Principal, string) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		if a.validKey(key) {
			return &Principal{Method: "api_key"}, ""
		}
		return nil, "invalid API key"
	}

	authz := r.Header.Get("Authorization")
	if authz == "" {
		return nil, "missing credentials"
	}
	token, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, "malformed authorization header"
	}
	if a.jwt == nil {
		return nil, "session tokens not accepted"
	}
	claims, err := a.jwt.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return nil, err.Error()
	}
	return &Principal{Method: "session", SessionID: claims.SessionID}, ""
}

func (a *Authenticator) validKey(key string) bool {
	for _, k := range a.apiKeys {
		if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="fundqa"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "detail": reason})
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the caller from context
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}

// SessionIDFromContext returns the session id of a token-authenticated caller.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.SessionID == "" {
		return "", false
	}
	return p.SessionID, true
}
