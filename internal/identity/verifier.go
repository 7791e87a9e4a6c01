// Package identity verifies the bearer tokens clients present when joining a
// space. Tokens are issued elsewhere; this package only checks them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated is returned for any token that does not resolve to a user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotConfigured is returned when the verifier has no signing secret.
	ErrNotConfigured = errors.New("token verifier is not configured")
)

// Verifier resolves a token to the user id it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// JWTVerifier checks HMAC-signed JWTs. The user id is taken from the
// "username" claim, falling back to "sub".
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

// Verify validates token and returns its user id.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if v == nil || len(v.secret) == 0 {
		return "", ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: token is required", ErrUnauthenticated)
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	userID := strings.TrimSpace(parsed.Username)
	if userID == "" {
		userID = strings.TrimSpace(parsed.Subject)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: token has no user", ErrUnauthenticated)
	}
	return userID, nil
}

// Issue signs an HS256 token for userID. A zero ttl issues a token without
// an expiry; a negative ttl issues one that has already expired. It exists
// for seeding and tests; production tokens come from the account service.
func Issue(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Username: userID,
	}
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
