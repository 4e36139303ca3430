// Package auth provides bearer API-key authentication for the MCP
// server surface.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/alexjbarnes/vault-share/internal/config"
)

type contextKey int

const ctxUserID contextKey = iota

// RequestUserID returns the authenticated user ID from the context, or "".
func RequestUserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

// KeyStore maps API keys to user identities. Keys are held as SHA-256
// hashes, so the raw secrets never sit in memory longer than a lookup
// and comparison happens on fixed-length digests.
type KeyStore struct {
	byHash map[string]string
}

// NewKeyStore builds a KeyStore from configured entries.
func NewKeyStore(entries []config.APIKeyEntry) *KeyStore {
	byHash := make(map[string]string, len(entries))
	for _, e := range entries {
		byHash[hashKey(e.Key)] = e.UserID
	}

	return &KeyStore{byHash: byHash}
}

// Lookup returns the user ID for a presented key.
func (ks *KeyStore) Lookup(key string) (string, bool) {
	userID, ok := ks.byHash[hashKey(key)]
	return userID, ok
}

func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// Middleware returns HTTP middleware that validates Bearer API keys
// against the store. Unauthenticated requests get a 401 with a
// WWW-Authenticate challenge.
func Middleware(ks *KeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				logger.Debug("request without bearer key", slog.String("ip", ip))
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing bearer token", http.StatusUnauthorized)

				return
			}

			key := strings.TrimPrefix(authHeader, "Bearer ")

			userID, ok := ks.Lookup(key)
			if !ok {
				logger.Warn("invalid API key rejected", slog.String("ip", ip))
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "invalid API key", http.StatusUnauthorized)

				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
