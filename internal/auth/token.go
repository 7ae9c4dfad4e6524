package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stallmarket/bastion/internal/access"
)

// ActorClaims are the JWT claims the host application issues; this core
// only consumes them to resolve the request actor for Layer 1.
type ActorClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenManager validates actor tokens minted by the host application.
type TokenManager struct {
	secret []byte
	expiry time.Duration
}

// NewTokenManager creates a token manager over a shared HMAC secret.
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), expiry: expiry}
}

// IssueToken mints an actor token. Exposed for the host's login flow and
// for the integration tests; this core never calls it on its own behalf.
func (tm *TokenManager) IssueToken(userID string, roles []access.Role) (string, error) {
	now := time.Now()
	roleNames := make([]string, len(roles))
	for i, r := range roles {
		roleNames[i] = string(r)
	}

	claims := ActorClaims{
		Roles: roleNames,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies an actor token, returning its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*ActorClaims, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ActorState converts validated claims into the evaluator's actor input.
func (c *ActorClaims) ActorState() access.ActorState {
	roles := make([]access.Role, len(c.Roles))
	for i, r := range c.Roles {
		roles[i] = access.Role(r)
	}
	return access.ResolvedActor(c.Subject, roles...)
}
