package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserIdentity is the authenticated principal behind a connection
type UserIdentity struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Name   string    `json:"name,omitempty"`
}

// IdentityVerifier resolves an access token to an identity
type IdentityVerifier interface {
	VerifyToken(ctx context.Context, token string) (*UserIdentity, error)
}
