package handlers

import (
	"crypto/sha256"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOKEN AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// ErrNoTokenHash is returned when the API is configured without a hash.
var ErrNoTokenHash = errors.New("dashboard token hash is empty")

// TokenAuth checks a bearer token against a bcrypt hash. Successful tokens
// are remembered by their SHA-256 digest so bcrypt runs once per token.
type TokenAuth struct {
	hash []byte

	mu       sync.RWMutex
	accepted map[[sha256.Size]byte]struct{}
}

// NewTokenAuth creates an authenticator for a bcrypt hash.
func NewTokenAuth(hash string) (*TokenAuth, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, ErrNoTokenHash
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	return &TokenAuth{hash: []byte(hash), accepted: make(map[[sha256.Size]byte]struct{})}, nil
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Valid reports whether token matches the hash.
func (a *TokenAuth) Valid(token string) bool {
	if token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))

	a.mu.RLock()
	_, ok := a.accepted[sum]
	a.mu.RUnlock()
	if ok {
		return true
	}

	if bcrypt.CompareHashAndPassword(a.hash, []byte(token)) != nil {
		return false
	}
	a.mu.Lock()
	a.accepted[sum] = struct{}{}
	a.mu.Unlock()
	return true
}

// Middleware rejects requests without a valid "Authorization: Bearer" token.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			http.Error(w, `{"error":"missing_token","message":"bearer token is required"}`, http.StatusUnauthorized)
			return
		}
		if !a.Valid(strings.TrimSpace(token)) {
			http.Error(w, `{"error":"invalid_token","message":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERIC MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, `{"error":"payload_too_large","message":"request body too large"}`,
					http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
