package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
	"github.com/tjdeveng/KeepTower-sub010/internal/vault"
)

// Claims carries the authenticated identity inside a session token.
type Claims struct {
	Username string     `json:"username"`
	Role     vault.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies short-lived session tokens for the local
// daemon. Keys are generated per process; tokens do not survive a restart,
// which is the point.
type TokenIssuer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	ttl  time.Duration
}

func NewTokenIssuer(ttl time.Duration) (*TokenIssuer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("auth: token key generation: %w: %v", kterrors.ErrCryptoError, err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{priv: priv, pub: pub, ttl: ttl}, nil
}

// Issue signs a token for an authenticated user.
func (ti *TokenIssuer) Issue(username string, role vault.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := tok.SignedString(ti.priv)
	if err != nil {
		return "", fmt.Errorf("auth: token signing: %w: %v", kterrors.ErrCryptoError, err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (ti *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
		}
		return ti.pub, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("auth: %w", kterrors.ErrAuthenticationFailed)
	}
	return claims, nil
}
