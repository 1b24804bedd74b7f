// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. Email is the login identifier and is unique
// across all users.
type User struct {
	ID           uuid.UUID // Assigned by the repository on creation.
	Name         string    // Display name.
	Email        string    // Normalized (trimmed, lower-cased) login email.
	PasswordHash string    // bcrypt hash, never the plaintext.
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
