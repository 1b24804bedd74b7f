package middleware

import (
	"strings"

	deliverycontext "accounts/internal/delivery/context"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/service"

	"github.com/labstack/echo/v4"
)

const bearerPrefix = "bearer "

// AuthMiddleware validates session tokens on protected routes.
type AuthMiddleware struct {
	tokenSvc service.TokenService
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(tokenSvc service.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokenSvc: tokenSvc}
}

// Authenticate accepts the token either bare or with a Bearer prefix in the
// Authorization header and stores the subject on the context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := extractToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if tokenString == "" {
			return domainerrors.ErrAuthorizationRequired
		}

		claims, err := m.tokenSvc.Validate(tokenString)
		if err != nil {
			return err
		}

		deliverycontext.SetUserID(c, claims.UserID)

		return next(c)
	}
}

func extractToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}

	return header
}
