package auth

import (
	"context"
	"crypto/subtle"
	"errors"
)

// TokenService authenticates callers against a single configured API token.
// It stands in for the external auth collaborator that owns user accounts and
// token issuance; this service only needs the yes/no answer.
type TokenService struct {
	token string
}

// NewTokenService creates a token service for the configured token.
func NewTokenService(token string) *TokenService {
	return &TokenService{token: token}
}

// Authenticate reports whether the presented token matches the configured one.
func (s *TokenService) Authenticate(_ context.Context, token string) (bool, error) {
	if s.token == "" {
		return false, errors.New("api token not configured")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1, nil
}
