package auth

import (
	"time"

	"accounts/config"
	"accounts/internal/domain/entity"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/service"
	"accounts/internal/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// sessionTTL is the fixed validity window of a session token.
const sessionTTL = time.Hour

// jwtService is a concrete implementation of the TokenService interface using
// HS256-signed JWTs. It keeps no state beyond the secret: a token is valid
// exactly when its signature verifies and the clock is before its expiry.
type jwtService struct {
	secret []byte
	now    service.Clock
}

// NewJWTService is the constructor for jwtService. It refuses to start
// without a signing secret.
func NewJWTService(cfg *config.Config, clock service.Clock) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" {
		return nil, errors.New("jwt secret must be provided")
	}
	if clock == nil {
		clock = service.NewSystemClock()
	}

	return &jwtService{
		secret: []byte(cfg.SecretKey.Access),
		now:    clock,
	}, nil
}

// Issue signs a token for userID with iat = now and exp = now + 1h.
func (s *jwtService) Issue(userID uuid.UUID) (*entity.Session, error) {
	now := s.now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := expiryAfter(now, sessionTTL)

	claims := service.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, errors.Wrap(err, "sign token")
	}

	return &entity.Session{
		Token:     signed,
		Subject:   userID,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// expiryAfter returns now+ttl rounded up to the claim precision, so the
// token is never valid for less than ttl.
func expiryAfter(now time.Time, ttl time.Duration) *jwt.NumericDate {
	deadline := now.Add(ttl)
	exp := jwt.NewNumericDate(deadline)
	if exp.Before(deadline) {
		exp = jwt.NewNumericDate(exp.Add(jwt.TimePrecision))
	}

	return exp
}

// Validate verifies signature and expiry against the injected clock.
func (s *jwtService) Validate(tokenString string) (*service.Claims, error) {
	claims := &service.Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, err.Error())
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "subject is not a user id")
	}
	claims.UserID = userID

	return claims, nil
}
