// internal/auth/token.go
package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
)

const issuer = "phaseten"

// Tokens issues and verifies the opaque token handed to a user alongside
// their id. Tokens are HS256 JWTs whose subject is the user id.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a Tokens signing with secret. An empty secret generates a
// random one, so tokens do not survive a restart. A zero ttl issues tokens
// that never expire.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}
	return &Tokens{secret: key, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for userID.
func (t *Tokens) Issue(userID uuid.UUID) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  userID.String(),
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if t.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its subject.
// Every failure is reported as engine.ErrUnauthorized.
func (t *Tokens) Verify(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return uuid.Nil, engine.ErrUnauthorized.Withf("invalid token: %v", err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, engine.ErrUnauthorized.Withf("invalid token subject")
	}
	return id, nil
}
