package service

import (
	"accounts/internal/domain/entity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims defines the custom claims for the JWT tokens. The user id travels in
// the standard "sub" claim; UserID is its parsed form.
type Claims struct {
	UserID uuid.UUID `json:"-"`
	jwt.RegisteredClaims
}

// TokenService defines the interface for generating and validating JWTs.
// This abstracts the details of token creation from the use cases.
type TokenService interface {
	// Issue creates a signed session token for the given user.
	Issue(userID uuid.UUID) (*entity.Session, error)

	// Validate checks signature and expiry. Every failure is reported as
	// domainerrors.ErrInvalidToken.
	Validate(tokenString string) (*Claims, error)
}
