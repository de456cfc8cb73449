package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrMissingExpiry = errors.New("token claims must include an expiry")
)

// Claims is the payload shared by admin session and asker tokens.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// NewClaims builds claims for subject valid from now until now+ttl.
func NewClaims(tokenType, subject string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// TokenCodec signs and verifies claims with a shared HMAC secret.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

func NewTokenCodec(secret, algorithm string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q: an HMAC algorithm is required", algorithm)
	}

	return &TokenCodec{
		secret: []byte(secret),
		method: method,
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source used to validate expiry.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

func (c *TokenCodec) Now() time.Time {
	return c.now()
}

func (c *TokenCodec) Encode(claims *Claims) (string, error) {
	if claims == nil || claims.ExpiresAt == nil {
		return "", ErrMissingExpiry
	}

	token := jwt.NewWithClaims(c.method, claims)

	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Decode verifies signature, algorithm and expiry in one step.
// Expired tokens yield ErrTokenExpired; everything else yields ErrTokenInvalid.
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
