package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_IssueResolve(t *testing.T) {
	v := NewJWTVerifier("secret", "marketchat-service", time.Hour)

	token, err := v.Issue("user-42")
	require.NoError(t, err)

	userID, err := v.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("secret", "marketchat-service", time.Hour)
	good, err := v.Issue("user-42")
	require.NoError(t, err)

	other := NewJWTVerifier("other-secret", "marketchat-service", time.Hour)
	foreign, err := other.Issue("user-42")
	require.NoError(t, err)

	wrongIssuer := NewJWTVerifier("secret", "someone-else", time.Hour)
	misissued, err := wrongIssuer.Issue("user-42")
	require.NoError(t, err)

	expiredV := NewJWTVerifier("secret", "marketchat-service", time.Minute)
	expiredV.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredV.Issue("user-42")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-42"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":       "not-a-jwt",
		"wrong secret":  foreign,
		"wrong issuer":  misissued,
		"expired":       expired,
		"alg none":      unsigned,
		"tampered tail": good + "x",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Resolve(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTVerifier_NoSecret(t *testing.T) {
	v := NewJWTVerifier("", "", 0)

	_, err := v.Issue("u")
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = v.Resolve("x")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
