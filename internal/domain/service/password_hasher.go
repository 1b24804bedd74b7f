// Package service defines interfaces for core, stateless domain logic.
// These services encapsulate business rules that don't naturally fit within a single entity.
package service

import "context"

// PasswordHasher defines the interface for password hashing and verification.
// This abstracts the underlying hashing algorithm (e.g., bcrypt), keeping the domain pure.
type PasswordHasher interface {
	// Hash generates a salted hash from a plaintext password.
	Hash(ctx context.Context, password string) (string, error)

	// Check compares a plaintext password with a hash to see if they match.
	// It never fails: malformed hashes and cancelled contexts report false.
	// An empty hash never matches but costs as much as a real comparison,
	// which lets callers keep unknown-account lookups as slow as real ones.
	Check(ctx context.Context, password, hash string) bool
}
