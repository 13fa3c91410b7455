package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rl1809/market-core/internal/port"
)

const DefaultTokenTTL = 10 * time.Minute

type claims struct {
	User int64 `json:"user"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HS256 tokens carrying the user id in a numeric
// "user" claim, scoped to one audience.
type JWTAuthenticator struct {
	secret   []byte
	audience string
	now      func() time.Time
}

func NewJWTAuthenticator(secret, audience string) (*JWTAuthenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if audience == "" {
		return nil, errors.New("jwt audience is required")
	}
	return &JWTAuthenticator{secret: []byte(secret), audience: audience, now: time.Now}, nil
}

// Authenticate accepts a bare token or an "Authorization: Bearer" value.
func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (int64, error) {
	token := strings.TrimSpace(credential)
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "bearer") {
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return 0, port.ErrInvalidCredential
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", port.ErrInvalidCredential, err)
	}
	if c.User <= 0 {
		return 0, fmt.Errorf("%w: missing user claim", port.ErrInvalidCredential)
	}
	return c.User, nil
}

// Issue mints a token for userID. Used by tooling; the marketplace itself
// never issues credentials.
func (a *JWTAuthenticator) Issue(userID int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		User: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(a.secret)
}
