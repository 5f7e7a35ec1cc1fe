package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKeys map[string]*rsa.PublicKey

func (s staticKeys) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := s[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("key with kid %s not found", kid)
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// echoUserID writes the authenticated user id as the response body.
func echoUserID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "%d", userID)
	})
}

func TestClerkAuthMiddleware(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	handler := ClerkAuthMiddleware(staticKeys{"kid-1": &key.PublicKey}, zerolog.Nop())(echoUserID())
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "internal user id claim",
			header:     "Bearer " + signToken(t, key, "kid-1", jwt.MapClaims{"sub": "user_abc", "internal_user_id": 42, "exp": exp}),
			wantStatus: http.StatusOK,
			wantBody:   "42",
		},
		{
			name: "public metadata claim",
			header: "Bearer " + signToken(t, key, "kid-1", jwt.MapClaims{
				"sub":             "user_abc",
				"public_metadata": map[string]interface{}{"internalUserId": "77"},
				"exp":             exp,
			}),
			wantStatus: http.StatusOK,
			wantBody:   "77",
		},
		{
			name:       "no internal user id",
			header:     "Bearer " + signToken(t, key, "kid-1", jwt.MapClaims{"sub": "user_abc", "exp": exp}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired",
			header:     "Bearer " + signToken(t, key, "kid-1", jwt.MapClaims{"internal_user_id": 42, "exp": time.Now().Add(-time.Minute).Unix()}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "signed by another key",
			header:     "Bearer " + signToken(t, otherKey, "kid-1", jwt.MapClaims{"internal_user_id": 42, "exp": exp}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown kid",
			header:     "Bearer " + signToken(t, key, "kid-9", jwt.MapClaims{"internal_user_id": 42, "exp": exp}),
			wantStatus: http.StatusUnauthorized,
		},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/banking/directories", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestHeaderAuthMiddleware(t *testing.T) {
	handler := HeaderAuthMiddleware()(echoUserID())

	tests := []struct {
		name       string
		value      string
		wantStatus int
	}{
		{name: "valid", value: "15", wantStatus: http.StatusOK},
		{name: "missing", value: "", wantStatus: http.StatusUnauthorized},
		{name: "not a number", value: "abc", wantStatus: http.StatusUnauthorized},
		{name: "zero", value: "0", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.value != "" {
				req.Header.Set(InternalUserIDHeader, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestJWKSKeySource(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": "kid-1",
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	defer server.Close()

	source := NewJWKSKeySource(server.URL, time.Hour)
	ctx := context.Background()

	pub, err := source.PublicKey(ctx, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, 0, key.PublicKey.N.Cmp(pub.N))
	assert.Equal(t, key.PublicKey.E, pub.E)

	_, err = source.PublicKey(ctx, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches), "keys are cached")

	_, err = source.PublicKey(ctx, "kid-2")
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches), "unknown kids trigger a refetch")
}
