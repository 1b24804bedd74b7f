package entity

import (
	"time"

	"github.com/google/uuid"
)

// Session is the result of a successful login. It only lives in the response;
// nothing about it is stored server side.
type Session struct {
	Token     string
	Subject   uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}
