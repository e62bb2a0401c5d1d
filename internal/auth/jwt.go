// Package auth mints and verifies the bearer tokens that guard the mutating
// routes of the web API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned for a missing, malformed, expired or wrongly signed
// token.
var ErrInvalid = errors.New("invalid token")

// ErrNoSecret is returned when minting without a configured secret.
var ErrNoSecret = errors.New("jwt secret not configured")

// DefaultTTL is the lifetime of tokens minted without an explicit ttl.
const DefaultTTL = 24 * time.Hour

// Claims identify the operator behind an API call.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Signer mints and verifies HS256 tokens with one shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns a Signer for secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether a secret is configured.
func (s *Signer) Enabled() bool { return s != nil && len(s.secret) > 0 }

// Generate mints a token for operator valid for ttl.
func (s *Signer) Generate(operator string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now()
	claims := Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			Issuer:    "voyager",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies tokenStr and returns its claims.
func (s *Signer) Parse(tokenStr string) (*Claims, error) {
	if !s.Enabled() || tokenStr == "" {
		return nil, ErrInvalid
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalid
	}
	return claims, nil
}
