// Package auth issues and verifies the bearer credentials used by both the
// HTTP API and the websocket authenticate event.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, badly signed, expired and missing credentials.
var ErrInvalidToken = errors.New("invalid or expired token")

// CookieName is the cookie carrying the credential for browser clients.
const CookieName = "token"

// Verifier resolves an opaque credential to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Claims carries the registered claims plus the user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// JWTManager signs and validates HS256 tokens.
type JWTManager struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewJWTManager constructs a JWTManager.
func NewJWTManager(secret string, validity time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), validity: validity, now: time.Now}
}

// Validity reports how long issued tokens stay valid.
func (m *JWTManager) Validity() time.Duration {
	return m.validity
}

// Issue signs a token for userID.
func (m *JWTManager) Issue(userID string) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
		},
		UserID: userID,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates the token and returns its user id. Every failure is
// reported as ErrInvalidToken so callers classify them identically.
func (m *JWTManager) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// TokenFromRequest extracts a credential from the Authorization header, the
// token cookie or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}
