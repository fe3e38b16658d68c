package apitest

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type claims struct {
	jwt.RegisteredClaims

	// Epoch invalidates every token issued before the last RevokeTokens call.
	Epoch int `json:"epoch"`
}

// IssueToken signs a token for userID valid for ttl. A negative ttl yields an
// already expired token.
func (s *Server) IssueToken(userID string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Epoch: epoch,
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken implements http.TokenValidator.
func (s *Server) ValidateToken(ctx context.Context, tokenString string) (string, bool) {
	var c claims

	_, err := jwt.ParseWithClaims(tokenString, &c, func(*jwt.Token) (any, error) {
		return &s.signingKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		s.log.DebugContext(ctx, "token rejected", "error", err)

		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Epoch != s.epoch {
		return "", false
	}

	if _, ok := s.users[c.Subject]; !ok {
		return "", false
	}

	return c.Subject, true
}

// RevokeTokens invalidates every token issued so far.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
}
