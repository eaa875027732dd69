package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/thammuio/flowgate/internal/constants"
)

// Token is an access token obtained from the gateway's exchange endpoint
// or provided directly by the caller.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresIn   int64     `json:"expires_in,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the token can still be sent. Tokens within the
// expiration buffer count as invalid so a refresh happens before the
// gateway starts rejecting them.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(constants.TokenExpirationBuffer).Before(t.ExpiresAt)
}

// TokenStore holds the current token with concurrent access safety.
type TokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the current token, or nil when none is set.
func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Set replaces the current token.
func (s *TokenStore) Set(token *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

// Clear removes the current token.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil
}

// jwtClaims is the subset of JWT payload claims the client reads.
type jwtClaims struct {
	Exp int64 `json:"exp"`
}

// ParseJWTExpiry extracts the expiration time from a JWT without
// verifying its signature. Verification belongs to the gateway; the
// client only needs the expiry to schedule re-exchange.
func ParseJWTExpiry(raw string) (time.Time, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != constants.TokenPartsCount {
		return time.Time{}, constants.ErrInvalidJWTFormat
	}

	payload := parts[1]
	if pad := len(payload) % constants.Base64PaddingLength; pad != 0 {
		payload += strings.Repeat("=", constants.Base64PaddingLength-pad)
	}

	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", constants.ErrInvalidJWTFormat, err)
	}

	var claims jwtClaims

	err = json.Unmarshal(decoded, &claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", constants.ErrInvalidJWTFormat, err)
	}

	if claims.Exp <= 0 {
		return time.Time{}, constants.ErrNoExpirationClaim
	}

	return time.Unix(claims.Exp, 0), nil
}

// LooksLikeJWT reports whether a string has the three-part shape of a
// serialized JWT.
func LooksLikeJWT(raw string) bool {
	return len(strings.Split(raw, ".")) == constants.TokenPartsCount
}
