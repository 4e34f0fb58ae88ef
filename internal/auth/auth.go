// Package auth resolves connection tokens into user identities.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for malformed, expired or wrongly signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrNoSecret is returned when the verifier has no signing key configured.
	ErrNoSecret = errors.New("auth: signing secret not configured")
)

// Verifier resolves a bearer token into a user identity.
type Verifier interface {
	Resolve(token string) (string, error)
}

// JWTVerifier issues and verifies HS256 tokens whose subject is the user id.
type JWTVerifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTVerifier constructs a verifier. ttl applies to tokens it issues.
func NewJWTVerifier(secret, issuer string, ttl time.Duration) *JWTVerifier {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for userID.
func (v *JWTVerifier) Issue(userID string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("auth: empty user id")
	}

	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Resolve validates token and returns its subject.
func (v *JWTVerifier) Resolve(token string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	var claims jwt.RegisteredClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
