package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	m := NewJWTManager("super-secret", time.Hour)
	tok, err := m.Issue("user-123")
	require.NoError(t, err)

	got, err := m.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", got)
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	m := NewJWTManager("secret", -time.Second)
	tok, err := m.Issue("u1")
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewJWTManager("right", time.Hour).Issue("u2")
	require.NoError(t, err)

	_, err = NewJWTManager("wrong", time.Hour).Verify(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMalformedAndEmpty(t *testing.T) {
	t.Parallel()

	m := NewJWTManager("secret", time.Hour)
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := m.Verify(context.Background(), tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "u3",
	})
	signed, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTManager("secret", time.Hour).Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u4"})
	signed, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTManager("secret", time.Hour).Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	assert.Equal(t, "query", TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie"})
	assert.Equal(t, "cookie", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "header", TokenFromRequest(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", TokenFromRequest(req), "a non-bearer header is not silently replaced by the cookie")
}
