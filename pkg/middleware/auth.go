/**
 * @description
 * This package provides middleware for the HTTP server, specifically for
 * authenticating callers and rate limiting them.
 *
 * @notes
 * - In jwt mode Clerk session tokens are verified against the Clerk JWKS and the
 *   internal user id is read from the token claims.
 * - In header mode the id is trusted from X-Internal-User-Id, which is only meant
 *   for calls coming through the internal gateway and for local runs.
 */
package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// AuthContextKey is a custom type for the context key to avoid collisions.
type AuthContextKey string

// UserIDKey is the key used to store the internal user id in the request context.
const UserIDKey AuthContextKey = "userID"

// InternalUserIDHeader carries the user id in header auth mode.
const InternalUserIDHeader = "X-Internal-User-Id"

var (
	ErrNoAuthHeader   = errors.New("authorization header is required")
	ErrNoInternalUser = errors.New("token does not carry an internal user id")
)

// KeySource resolves the RSA public key a token was signed with.
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// WithUserID stores userID in ctx.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext retrieves the internal user id from the request context.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok && userID > 0
}

// ClerkAuthMiddleware validates Clerk JWTs and extracts the internal user id.
func ClerkAuthMiddleware(keys KeySource, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "auth").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("kid not found in token header")
				}
				return keys.PublicKey(r.Context(), kid)
			}, jwt.WithValidMethods([]string{"RS256"}))
			if err != nil || !token.Valid {
				logger.Debug().Err(err).Msg("rejected token")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			userID, err := internalUserID(claims)
			if err != nil {
				http.Error(w, "User ID not found in token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// HeaderAuthMiddleware trusts the internal user id set by the gateway.
func HeaderAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(InternalUserIDHeader))
			if raw == "" {
				http.Error(w, "Unauthorized: Missing auth credentials", http.StatusUnauthorized)
				return
			}
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				http.Error(w, "Unauthorized: Invalid user id", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// internalUserID reads the user id from the internal_user_id claim or from the
// Clerk public metadata.
func internalUserID(claims jwt.MapClaims) (int64, error) {
	if id, ok := parseUserID(claims["internal_user_id"]); ok {
		return id, nil
	}
	if metadata, ok := claims["public_metadata"].(map[string]interface{}); ok {
		if id, ok := parseUserID(metadata["internalUserId"]); ok {
			return id, nil
		}
	}
	return 0, ErrNoInternalUser
}

func parseUserID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case float64:
		if id > 0 && id == float64(int64(id)) {
			return int64(id), true
		}
	case string:
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err == nil && parsed > 0 {
			return parsed, true
		}
	case json.Number:
		parsed, err := id.Int64()
		if err == nil && parsed > 0 {
			return parsed, true
		}
	}
	return 0, false
}

// JWKSKeySource fetches and caches the signing keys published at a JWKS URL.
type JWKSKeySource struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewJWKSKeySource(url string, ttl time.Duration) *JWKSKeySource {
	return &JWKSKeySource{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ttl:        ttl,
	}
}

// PublicKey returns the key for kid, refetching the JWKS when the cache is stale
// or the kid is unknown (keys rotate).
func (s *JWKSKeySource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	fresh := time.Since(s.fetchedAt) < s.ttl
	s.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("key with kid %s not found", kid)
}

func (s *JWKSKeySource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			return fmt.Errorf("jwks key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// parseRSAPublicKey parses an RSA public key from its base64url modulus and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp)}, nil
}
